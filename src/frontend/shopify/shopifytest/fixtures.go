package shopifytest

import "github.com/nordic-editorial/storefront/src/frontend/model"

// Armchair has a Color x Size grid with one sold-out combination.
func Armchair() model.Product {
	return model.Product{
		ID:        7001,
		Title:     "Linen Armchair",
		Handle:    "linen-armchair",
		URL:       "/products/linen-armchair",
		Available: true,
		Images:    []string{"https://cdn.example.com/files/armchair.jpg"},
		Options: []model.Option{
			{Name: "Color", Position: 1, Values: []string{"Red", "Blue"}},
			{Name: "Size", Position: 2, Values: []string{"S", "M"}},
		},
		Variants: []model.Variant{
			{ID: 1, Title: "Red / S", Options: []string{"Red", "S"}, Price: 1099, Available: true},
			{ID: 2, Title: "Red / M", Options: []string{"Red", "M"}, Price: 1199, CompareAtPrice: 1499, Available: true,
				FeaturedImage: &model.Image{ID: 900, Src: "https://cdn.example.com/files/armchair-red.jpg"}},
			{ID: 3, Title: "Blue / S", Options: []string{"Blue", "S"}, Price: 1099, Available: false},
		},
	}
}

// Mug has a single default variant.
func Mug() model.Product {
	return model.Product{
		ID:        7002,
		Title:     "Stoneware Mug",
		Handle:    "stoneware-mug",
		URL:       "/products/stoneware-mug",
		Available: true,
		Images:    []string{"https://cdn.example.com/files/mug.png"},
		Options:   []model.Option{{Name: "Title", Position: 1, Values: []string{"Default Title"}}},
		Variants: []model.Variant{
			{ID: 10, Title: "Default Title", Options: []string{"Default Title"}, Price: 2500, Available: true},
		},
	}
}

// Seeded returns a store stocked with Armchair, Mug and one collection.
func Seeded() *Store {
	s := NewStore()
	s.AddProduct(Armchair())
	s.AddProduct(Mug())
	s.AddCollection(model.SuggestLink{Title: "Living Room", URL: "/collections/living-room"})
	return s
}
