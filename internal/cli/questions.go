package cli

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"booklisting/internal/questions"
)

// QuestionsCmd prints the active question schema as YAML. Without --file
// or a config the built-in book listing schema is printed.
func QuestionsCmd(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Print the wizard question schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" && opts.configPath != "" {
				cfg, err := opts.load()
				if err != nil {
					return err
				}
				file = cfg.BasicConfig.QuestionsFile
			}
			schema, err := questions.Load(file)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(schema); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML schema file to validate and print")
	return cmd
}
