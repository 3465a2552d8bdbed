package domain

import "math"

// Columns is the canonical column order of the metadata table.
var Columns = []string{
	"id", "categoryName", "productName", "price", "quantity",
	"latitude", "longitude", "address", "province",
	"price_num", "quantity_num", "semantic_text",
}

// Item is one catalog row. Row i of the metadata table corresponds to row i
// of the embedding matrix.
type Item struct {
	ID           string
	CategoryName string
	ProductName  string
	Price        string
	Quantity     string
	Latitude     float64
	Longitude    float64
	Address      string

	// Derived from the fields above; recomputed on every load.
	Province     string
	PriceNum     float64
	QuantityNum  float64
	SemanticText string
}

// ItemPayload is the ingestion request body. Title and Content are accepted
// and discarded.
type ItemPayload struct {
	ID           string   `json:"id"`
	Title        string   `json:"title,omitempty"`
	Content      string   `json:"content,omitempty"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	Address      string   `json:"address"`
	CategoryName string   `json:"categoryName"`
	ProductName  string   `json:"productName"`
	Price        string   `json:"price"`
	Quantity     string   `json:"quantity"`
}

// NewItem validates the payload and computes every derived field.
func NewItem(p ItemPayload) (Item, error) {
	id := SafeStr(p.ID)
	if id == "" {
		return Item{}, &PayloadError{Field: "id", Reason: "must not be empty"}
	}
	return BuildItem(RawItem{
		ID:           id,
		CategoryName: p.CategoryName,
		ProductName:  p.ProductName,
		Price:        p.Price,
		Quantity:     p.Quantity,
		Latitude:     coordinate(p.Latitude),
		Longitude:    coordinate(p.Longitude),
		Address:      p.Address,
	}), nil
}

// RawItem holds the canonical (non-derived) fields of an item as they are
// stored on disk.
type RawItem struct {
	ID           string
	CategoryName string
	ProductName  string
	Price        string
	Quantity     string
	Latitude     float64
	Longitude    float64
	Address      string
}

// BuildItem derives province, numerics and semantic text from raw fields.
func BuildItem(r RawItem) Item {
	it := Item{
		ID:           SafeStr(r.ID),
		CategoryName: SafeStr(r.CategoryName),
		ProductName:  SafeStr(r.ProductName),
		Price:        r.Price,
		Quantity:     r.Quantity,
		Latitude:     r.Latitude,
		Longitude:    r.Longitude,
		Address:      r.Address,
	}
	it.Province = ExtractProvince(r.Address)
	it.PriceNum, _ = ExtractNumber(r.Price)
	it.QuantityNum, _ = ExtractNumber(r.Quantity)
	it.SemanticText = ItemText(it.CategoryName, it.ProductName)
	return it
}

// Query is a ranking request with its derived fields.
type Query struct {
	CategoryName string
	ProductName  string
	Price        string
	Quantity     string
	Latitude     float64
	Longitude    float64
	Address      string

	Province    string
	PriceNum    float64
	QuantityNum float64

	// Problems holds fields that could not be parsed. They degrade the
	// matching similarity term to zero and never abort ranking.
	Problems []*QueryParseError
}

// QueryPayload is the ranking request body.
type QueryPayload struct {
	CategoryName string   `json:"categoryName"`
	ProductName  string   `json:"productName"`
	Price        string   `json:"price"`
	Quantity     string   `json:"quantity"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	Address      string   `json:"address"`
}

// NewQuery derives a Query using the same extraction rules as ingestion.
func NewQuery(p QueryPayload) Query {
	q := Query{
		CategoryName: SafeStr(p.CategoryName),
		ProductName:  SafeStr(p.ProductName),
		Price:        p.Price,
		Quantity:     p.Quantity,
		Latitude:     coordinate(p.Latitude),
		Longitude:    coordinate(p.Longitude),
		Address:      p.Address,
		Province:     ExtractProvince(p.Address),
	}

	var err *QueryParseError
	if q.PriceNum, err = ExtractNumber(p.Price); err != nil && SafeStr(p.Price) != "" {
		err.Field = "price"
		q.Problems = append(q.Problems, err)
	}
	if q.QuantityNum, err = ExtractNumber(p.Quantity); err != nil && SafeStr(p.Quantity) != "" {
		err.Field = "quantity"
		q.Problems = append(q.Problems, err)
	}
	return q
}

// Text is the string embedded for a query. It carries the province in front
// of the category and product, unlike ItemText; stored embeddings were built
// without it.
func (q Query) Text() string {
	return q.Province + " | " + q.CategoryName + " | " + q.ProductName
}

// ScoredItem is a ranking result.
type ScoredItem struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Components holds the individual similarity terms of a composite score.
type Components struct {
	Semantic float64 `json:"semantic"`
	Price    float64 `json:"price"`
	Location float64 `json:"location"`
	Quantity float64 `json:"quantity"`
}

// Weights are the coefficients of the composite score.
type Weights struct {
	Semantic float64 `yaml:"semantic" json:"semantic"`
	Price    float64 `yaml:"price" json:"price"`
	Location float64 `yaml:"location" json:"location"`
	Quantity float64 `yaml:"quantity" json:"quantity"`
}

// DefaultWeights returns alpha=0.6, beta=0.1, gamma=0.2, delta=0.1.
func DefaultWeights() Weights {
	return Weights{Semantic: 0.6, Price: 0.1, Location: 0.2, Quantity: 0.1}
}

// Combine returns the weighted sum of the components.
func (w Weights) Combine(c Components) float64 {
	return w.Semantic*c.Semantic + w.Price*c.Price + w.Location*c.Location + w.Quantity*c.Quantity
}

// Status values of an IngestResult.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// IngestResult is the tagged outcome of an ingestion. It is the only thing
// that crosses the ingestion boundary; errors are converted into it.
type IngestResult struct {
	Status       string `json:"status"`
	SemanticText string `json:"semantic_text,omitempty"`
	EmbeddingDim int    `json:"embedding_dim,omitempty"`
	Items        int    `json:"items,omitempty"`
	Message      string `json:"message,omitempty"`

	Err error `json:"-"`
}

// OK reports whether the ingestion succeeded.
func (r IngestResult) OK() bool {
	return r.Status == StatusSuccess
}

// Stats describes the loaded corpus.
type Stats struct {
	MetadataRows  int    `json:"metadata_rows"`
	EmbeddingRows int    `json:"embedding_rows"`
	Dimension     int    `json:"dimension"`
	Aligned       bool   `json:"aligned"`
	Generation    uint64 `json:"generation"`
	Model         string `json:"model,omitempty"`
	Pending       int    `json:"pending_journal_entries"`
}

func coordinate(v *float64) float64 {
	if v == nil || math.IsInf(*v, 0) {
		return math.NaN()
	}
	return *v
}
