package tree

// Model supplies row data by Position. Implementations are shared by every
// session viewing a tree and must be safe for concurrent reads.
type Model interface {
	// ChildCount returns the number of children at pos; the empty Position
	// yields the number of top-level rows.
	ChildCount(pos Position) int
	ItemID(pos Position) string
	IsExpandable(pos Position) bool
	// Image returns the row's image, or nil when the row has none.
	Image(pos Position) *Image
}

// Locator is implemented by models that can find any row by id without
// walking expanded rows. It is used to lazily load custom tree children.
type Locator interface {
	Locate(id string) (Position, bool)
}

// Labeler is implemented by models that carry display text.
type Labeler interface {
	Label(pos Position) string
}

// Image is a row's image. URL is an external location; Content loads the bytes
// served by a targeted image request. At least one of them is set.
type Image struct {
	URL      string
	MimeType string
	// CacheKey allows clients to cache the image; when empty every image URL is unique.
	CacheKey string
	Content  func() ([]byte, error)
}

type emptyModel struct{}

func (emptyModel) ChildCount(Position) int { return 0 }
func (emptyModel) ItemID(Position) string { return "" }
func (emptyModel) IsExpandable(Position) bool { return false }
func (emptyModel) Image(Position) *Image { return nil }

// EmptyModel has no rows.
var EmptyModel Model = emptyModel{}
