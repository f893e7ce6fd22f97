package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"QChat/tools/errs"
)

// HTTPUploader hands the raw (base64 data-URI) image payload to the object
// storage collaborator and returns the stable URL it assigns. No retries:
// failure means the message is not created at all.
type HTTPUploader struct {
	Endpoint string
	Client   *http.Client
}

func NewHTTPUploader(endpoint string) *HTTPUploader {
	return &HTTPUploader{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: 15 * time.Second},
	}
}

type uploadRequest struct {
	Name string `json:"name"`
	Data string `json:"data"`
}

type uploadResponse struct {
	URL string `json:"url"`
}

func (u *HTTPUploader) Upload(ctx context.Context, data string) (string, error) {
	if u.Endpoint == "" {
		return "", errs.ErrUpload.WrapMsg("no upload endpoint configured")
	}
	body, err := json.Marshal(uploadRequest{Name: uuid.NewString(), Data: data})
	if err != nil {
		return "", errs.ErrUpload.WrapMsg("encode upload request", "err", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", errs.ErrUpload.WrapMsg("build upload request", "err", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.Client.Do(req)
	if err != nil {
		return "", errs.ErrUpload.WrapMsg("upload call failed", "err", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		return "", errs.ErrUpload.WrapMsg(fmt.Sprintf("upload returned status %d", resp.StatusCode))
	}
	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errs.ErrUpload.WrapMsg("decode upload response", "err", err)
	}
	if out.URL == "" {
		return "", errs.ErrUpload.WrapMsg("upload response missing url")
	}
	return out.URL, nil
}
