package tool

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/chemora/batchup/types"
)

// BuildUploadURL builds the upload endpoint URL with the optional transform
// query parameters. Transform fields are only attached when resize is on.
func BuildUploadURL(endpoint string, opts types.SendOptions) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to parse endpoint URL: %v", err)
	}
	q := u.Query()
	if opts.Resize {
		if opts.MaxWidth > 0 {
			q.Set("width", strconv.Itoa(opts.MaxWidth))
		}
		if opts.MaxHeight > 0 {
			q.Set("height", strconv.Itoa(opts.MaxHeight))
		}
	}
	if opts.Compress && opts.Quality > 0 {
		q.Set("quality", strconv.Itoa(opts.Quality))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
