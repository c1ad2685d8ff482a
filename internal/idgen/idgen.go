package idgen

// Generator produces and checks identifiers of one kind.
type Generator interface {
	Generate() (string, error)
	Validate(id string) (bool, string) // (valid, reason)
}
