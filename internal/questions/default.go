package questions

// Default returns the book-sale schema.
func Default() *Schema {
	s, err := New([]Descriptor{
		{ID: "title", Label: "Book Title", Kind: KindText},
		{ID: "author", Label: "Book Author", Kind: KindText},
		{ID: "mrp", Label: "Book MRP", Kind: KindNumber},
		{ID: "price", Label: "Selling Price", Kind: KindNumber},
		{
			ID:    "condition",
			Label: "Book Condition",
			Kind:  KindRadio,
			Options: []Option{
				{Value: "best", Label: "BEST (didn't use)"},
				{Value: "moderate", Label: "MODERATE (everything intact)"},
				{Value: "usable", Label: "USABLE (minor cuts, no harm to content)"},
			},
		},
		{
			ID:       "location",
			Label:    "Preferred Meet Location",
			Kind:     KindTextarea,
			HelpText: "e.g., nearby school, college, or hot spot",
		},
		{ID: "contact", Label: "Contact Details", Kind: KindText},
		{
			ID:    "delivery",
			Label: "Delivery Method",
			Kind:  KindRadio,
			Options: []Option{
				{Value: "location", Label: "On location given"},
				{Value: "shipment", Label: "By shipment (post)"},
				{Value: "contact", Label: "Will be shared on contact"},
			},
		},
		{
			ID:    "images",
			Label: "Upload Book Images",
			Kind:  KindFileMulti,
			Files: &FileConstraints{Accept: "image/*", Multiple: true},
		},
	})
	if err != nil {
		panic(err)
	}
	return s
}
