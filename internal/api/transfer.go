package api

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
)

// Progress receives the number of file bytes sent so far and the total.
type Progress func(sent, total int64)

type progressReader struct {
	r     io.Reader
	sent  atomic.Int64
	total int64
	fn    Progress
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.fn != nil {
		p.fn(p.sent.Add(int64(n)), p.total)
	}
	return n, err
}

// Upload sends path as a multipart form field. The multipart content type
// (with its boundary) is set by the writer; the body is rebuilt when the
// pipeline retries after a refresh.
func (c *Client) Upload(ctx context.Context, rawURL, fieldName, path string, fields map[string]string, progress Progress, out any, opts ...RequestOption) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}
	if fi.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	build := func() (io.Reader, string, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, "", fmt.Errorf("opening file: %w", err)
		}

		pr, pw := io.Pipe()
		writer := multipart.NewWriter(pw)

		go func() {
			defer f.Close()

			for _, k := range keys {
				if err := writer.WriteField(k, fields[k]); err != nil {
					pw.CloseWithError(err)
					return
				}
			}
			part, err := writer.CreateFormFile(fieldName, filepath.Base(path))
			if err != nil {
				pw.CloseWithError(err)
				return
			}
			src := &progressReader{r: f, total: fi.Size(), fn: progress}
			if _, err := io.Copy(part, src); err != nil {
				pw.CloseWithError(err)
				return
			}
			pw.CloseWithError(writer.Close())
		}()

		return pr, writer.FormDataContentType(), nil
	}

	resp, err := c.execute(ctx, http.MethodPost, rawURL, build, buildConfig(opts))
	if err != nil {
		return err
	}
	return decodeResponse(resp, out)
}

// Download streams a binary response into w and returns the bytes written.
func (c *Client) Download(ctx context.Context, rawURL string, w io.Writer, opts ...RequestOption) (int64, error) {
	rc := buildConfig(opts)
	rc.accept = "application/octet-stream, */*"
	resp, err := c.execute(ctx, http.MethodGet, rawURL, noBody, rc)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return io.Copy(w, resp.Body)
}
