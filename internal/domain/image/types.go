package image

// Status tags the outcome of loading an image from disk.
type Status int

const (
	StatusOK Status = iota
	StatusNotFound
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// DefaultMIMEType is declared for every payload regardless of the source format.
const DefaultMIMEType = "image/jpeg"

// EncodedImage is a base64 payload ready to embed in a text request.
type EncodedImage struct {
	Path     string
	Base64   string
	MIMEType string
	Size     int64
	// Format is the sniffed container format ("jpeg", "png", ...), empty when unknown.
	Format string
	Width  int
	Height int
}

// DataURI renders the payload as a data: URI.
func (e EncodedImage) DataURI() string {
	mime := e.MIMEType
	if mime == "" {
		mime = DefaultMIMEType
	}
	return "data:" + mime + ";base64," + e.Base64
}

// LoadResult is the tagged result of Loader.Load. Image is only set for StatusOK.
type LoadResult struct {
	Status Status
	Path   string
	Image  EncodedImage
}

func (r LoadResult) Found() bool {
	return r.Status == StatusOK
}
