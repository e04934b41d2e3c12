package domain

// Status is a structured progress update. Message is a template rendered by
// the sink, Delta the number of units completed since the previous update.
type Status struct {
	Message string
	Delta   int
	Indent  int
	Args    []any
}
