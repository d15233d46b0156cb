package model

// MarketInfo is the per-market commercial data of a product.
type MarketInfo struct {
	Price        float64 `json:"price"`
	Availability int     `json:"availability"`
}

// LanguageInfo is the per-culture copy of a product.
type LanguageInfo struct {
	Title    string `json:"title"`
	SubTitle string `json:"subTitle"`
}

// Product is the catalog document stored under Key().
type Product struct {
	ID           string                  `json:"id"`
	Type         string                  `json:"type"`
	ProductID    int                     `json:"productId"`
	MarketInfo   map[string]MarketInfo   `json:"marketInfo,omitempty"`
	LanguageInfo map[string]LanguageInfo `json:"languageInfo,omitempty"`
}

// Key returns the document key type::id.
func (p Product) Key() string { return DocumentKey(p.Type, p.ID) }

// DocumentKey builds the storage key for a product of the given type and id.
func DocumentKey(typ, id string) string {
	return typ + "::" + id
}

// SampleProduct returns the fixed record written by the demo.
func SampleProduct() Product {
	return Product{
		ID:        "1::123",
		Type:      "Article",
		ProductID: 123,
		MarketInfo: map[string]MarketInfo{
			"fr": {Price: 200, Availability: 199},
			"be": {Price: 198, Availability: 101},
		},
		LanguageInfo: map[string]LanguageInfo{
			"fr-FR": {Title: "Title fr-FR", SubTitle: "sub title fr-FR"},
			"fr-BE": {Title: "Title fr-BE", SubTitle: "sub title fr-BE"},
			"nl-BE": {Title: "Title nl-BE", SubTitle: "sub title nl-BE"},
		},
	}
}
