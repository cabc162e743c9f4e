package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/sodular/sodular-go/internal/model"
)

// copyChunk is the buffer size for streamed downloads.
const copyChunk = 32 << 10

var errReplaced = errors.New("upload body replaced by replay")

// FilesService uploads, downloads and manages files in buckets.
type FilesService struct {
	c   *Client
	res resource[model.FileData]
}

// UploadInput describes one upload.
//
// When Content is an io.ReadSeeker the request can be replayed after a token
// refresh; otherwise an expired token fails the upload with ErrUnauthorized.
type UploadInput struct {
	BucketID  string
	StorageID string
	Filename  string
	Content   io.Reader
	// Size is reported to Progress as the total; -1 or 0 when unknown.
	Size     int64
	Progress ProgressFunc
}

// Upload streams Content as multipart form data.
func (s *FilesService) Upload(ctx context.Context, in UploadInput) (*model.File, error) {
	if in.BucketID == "" {
		return nil, errors.New("upload: bucket uid is required")
	}
	if in.Filename == "" || in.Content == nil {
		return nil, errors.New("upload: filename and content are required")
	}
	total := in.Size
	if total <= 0 {
		total = -1
	}

	boundary := multipart.NewWriter(io.Discard).Boundary()

	// Each attempt streams through its own pipe. A replay stops the previous
	// writer before rewinding the shared source.
	var (
		prev *io.PipeReader
		done chan struct{}
	)
	body := func(src io.Reader) io.ReadCloser {
		pr, pw := io.Pipe()
		finished := make(chan struct{})
		prev, done = pr, finished
		go func() {
			defer close(finished)
			pw.CloseWithError(writeMultipart(pw, boundary, in, &progressReader{r: src, total: total, fn: in.Progress}))
		}()
		return pr
	}

	seeker, rewindable := in.Content.(io.ReadSeeker)
	var start int64
	if rewindable {
		var err error
		if start, err = seeker.Seek(0, io.SeekCurrent); err != nil {
			rewindable = false
		}
	}

	rc := body(in.Content)
	req, err := s.c.newRequest(ctx, http.MethodPost, "files/upload", scope("bucket_id", in.BucketID), rc)
	if err != nil {
		rc.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary)

	if rewindable {
		req.GetBody = func() (io.ReadCloser, error) {
			prev.CloseWithError(errReplaced)
			<-done
			if _, err := seeker.Seek(start, io.SeekStart); err != nil {
				return nil, fmt.Errorf("rewind upload: %w", err)
			}
			return body(seeker), nil
		}
	}

	var out model.File
	if err := s.c.send(s.c.stream, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func writeMultipart(w io.Writer, boundary string, in UploadInput, content io.Reader) error {
	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(boundary); err != nil {
		return err
	}
	if err := mw.WriteField("bucket_id", in.BucketID); err != nil {
		return err
	}
	if in.StorageID != "" {
		if err := mw.WriteField("storage_id", in.StorageID); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("file", in.Filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, content); err != nil {
		return err
	}
	return mw.Close()
}

// Download streams the file's bytes into w and returns how many were written.
func (s *FilesService) Download(ctx context.Context, uid string, w io.Writer, progress ProgressFunc) (int64, error) {
	if uid == "" {
		return 0, errors.New("download: file uid is required")
	}
	req, err := s.c.newRequest(ctx, http.MethodGet, "files/download", url.Values{"file_id": {uid}}, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "*/*")

	resp, err := s.c.stream.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", uid, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := readLimited(resp.Body, maxResponseBody)
		return 0, decodeEnvelope(resp, data, nil)
	}

	pw := &progressWriter{w: w, total: resp.ContentLength, fn: progress}
	n, err := io.CopyBuffer(pw, resp.Body, make([]byte, copyChunk))
	if err != nil {
		return n, fmt.Errorf("download %s: %w", uid, err)
	}
	return n, nil
}

// Get fetches file metadata.
func (s *FilesService) Get(ctx context.Context, uid string) (*model.File, error) {
	return s.res.get(ctx, nil, uid)
}

// List lists files in a bucket.
func (s *FilesService) List(ctx context.Context, bucket string, q model.Query) (*model.List[model.File], error) {
	if bucket == "" {
		return nil, errors.New("files: bucket uid is required")
	}
	return s.res.list(ctx, scope("bucket_id", bucket), q)
}

// Delete removes a file.
func (s *FilesService) Delete(ctx context.Context, uid string) error {
	return s.res.delete(ctx, nil, uid)
}
