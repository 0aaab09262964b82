package llm

type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
)

// Format refines string params for validation.
type Format string

const (
	FormatNone Format = ""
	FormatDate Format = "date" // YYYY-MM-DD
	FormatTime Format = "time" // HH:MM
)

type Param struct {
	Name        string
	Type        ParamType
	Format      Format
	Description string
	Required    bool
	Enum        []string
	Min, Max    int // integer bounds; Max alone caps string length. Zero means unbounded.
}

// Tool declares one operation the model may request.
type Tool struct {
	Name        string
	Description string
	Params      []Param
}

func (t Tool) Param(name string) (Param, bool) {
	for _, p := range t.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}
