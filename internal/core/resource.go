package core

// Resource is the interface representing a manageable unit in the system.
// Solves Import Cycle issue by being in the Core package.
type Resource interface {
	Apply(ctx *SystemContext) (Result, error)
	Check(ctx *SystemContext) (bool, error)
	Validate(ctx *SystemContext) error
	GetName() string
	GetType() string
}

// Differ is implemented by resources that can describe pending changes.
type Differ interface {
	Diff(ctx *SystemContext) (string, error)
}

// BaseResource holds common fields.
type BaseResource struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

func (b *BaseResource) GetName() string {
	return b.Name
}

func (b *BaseResource) GetType() string {
	return b.Type
}

// CheckByDryRun reports whether res would change anything by running its
// Apply against a dry-run copy of ctx.
func CheckByDryRun(res Resource, ctx *SystemContext) (bool, error) {
	result, err := res.Apply(ctx.WithDryRun())
	if err != nil {
		return false, err
	}
	return result.Changed, nil
}
