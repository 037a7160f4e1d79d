package apiclient

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Meta mirrors the metadata JSON body served by the image API.
type Meta struct {
	ContentID string      `json:"contentId"`
	Status    string      `json:"status"`
	Source    MetaSource  `json:"source"`
	Target    *MetaTarget `json:"target,omitempty"`
}

// MetaSource describes the uploaded image.
type MetaSource struct {
	Name         string `json:"name,omitempty"`
	MIME         string `json:"mime"`
	QualityLevel int    `json:"qualitylevel,omitempty"`
	Size         int64  `json:"size,omitempty"`
}

// MetaTarget describes the recompressed image, present only once the
// entry is transformed.
type MetaTarget struct {
	QualityLevel int   `json:"qualitylevel,omitempty"`
	Size         int64 `json:"size,omitempty"`
}

// Upload submits an image and returns its content id. mime must be
// image/jpeg or image/png; name is the optional original filename.
func (c *Client) Upload(body io.Reader, size int64, mime, name string) (string, error) {
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/image", body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", mime)
	if name != "" {
		req.Header.Set("X-Guetzli-Img-Name", name)
	}

	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	// The id is carried in the Location header: /image/<id>/source
	loc := resp.Header.Get("Location")
	id := strings.TrimSuffix(strings.TrimPrefix(loc, "/image/"), "/source")
	if id == "" || id == loc {
		return "", fmt.Errorf("unexpected Location header %q", loc)
	}
	return id, nil
}

// List returns all content ids known to the server.
func (c *Client) List() ([]string, error) {
	var result struct {
		IDs []string `json:"ids"`
	}
	if err := c.getJSON("/image", &result); err != nil {
		return nil, err
	}
	return result.IDs, nil
}

// GetMeta returns the metadata record for a content id.
func (c *Client) GetMeta(id string) (*Meta, error) {
	var meta Meta
	if err := c.getJSON("/image/"+id+"/meta", &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// DownloadSource streams the stored source image into w.
func (c *Client) DownloadSource(id string, w io.Writer) error {
	return c.download("/image/"+id+"/source", w)
}

// DownloadTarget streams the transformed image into w. Entries that are
// not yet transformed answer with a not-found APIError.
func (c *Client) DownloadTarget(id string, w io.Writer) error {
	return c.download("/image/"+id+"/target", w)
}

func (c *Client) download(path string, w io.Writer) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("failed to read image body: %w", err)
	}
	return nil
}
