//go:build !windows && !linux

package counters

func NewETWCatalog() (Catalog, error)  { return nil, ErrUnsupported }
func NewPerfCatalog() (Catalog, error) { return nil, ErrUnsupported }

type unsupportedCatalog struct{}

func (unsupportedCatalog) Name() string              { return "none" }
func (unsupportedCatalog) Sources() ([]Source, error) { return nil, ErrUnsupported }

// Default returns a catalog that reports no sources.
func Default() Catalog { return unsupportedCatalog{} }
