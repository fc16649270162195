package delivery

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"strconv"

	"github.com/pagepulse/pagepulse-go/pkg/models"
)

// encodeBatch serializes an interaction batch as a multipart form.
// Returns the body and its content type (which carries the boundary).
func encodeBatch(batch *models.Batch) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := map[string]string{
		"sessionId":      batch.SessionID,
		"url":            batch.URL,
		"site":           batch.Site,
		"hostname":       batch.Hostname,
		"environment":    batch.Environment,
		"batchStartTime": strconv.FormatInt(batch.WindowStart, 10),
		"batchEndTime":   strconv.FormatInt(batch.WindowEnd, 10),
	}
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", name, err)
		}
	}

	if batch.Capture != nil {
		part, err := w.CreateFormFile("screenshot", batch.Capture.Filename)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create screenshot part: %w", err)
		}
		if _, err := part.Write(batch.Capture.PixelBuffer); err != nil {
			return nil, "", fmt.Errorf("failed to write screenshot: %w", err)
		}

		if err := w.WriteField("screenshotFilename", batch.Capture.Filename); err != nil {
			return nil, "", err
		}
		if err := w.WriteField("screenshotTimestamp", strconv.FormatInt(batch.Capture.Timestamp, 10)); err != nil {
			return nil, "", err
		}

		viewport, err := json.Marshal(batch.Capture.Viewport)
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal viewport: %w", err)
		}
		if err := w.WriteField("viewport", string(viewport)); err != nil {
			return nil, "", err
		}
	}

	if len(batch.Coordinates) > 0 {
		pointerData, err := json.Marshal(batch.Coordinates)
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal pointer data: %w", err)
		}
		if err := w.WriteField("pointerData", string(pointerData)); err != nil {
			return nil, "", err
		}
		if err := w.WriteField("coordinateCount", strconv.Itoa(len(batch.Coordinates))); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
