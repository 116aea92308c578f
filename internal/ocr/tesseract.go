package ocr

import (
	"context"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/rotisserie/eris"
)

// Tesseract recognizes text with libtesseract through gosseract. A fresh
// client is created per call; gosseract clients are not safe for concurrent use.
type Tesseract struct {
	languages      []string
	tessdataPrefix string
}

// NewTesseract creates a Tesseract engine. lang uses tesseract's "eng+ara" form.
func NewTesseract(lang, tessdataPrefix string) *Tesseract {
	return &Tesseract{languages: languages(lang), tessdataPrefix: tessdataPrefix}
}

// Words returns word boxes in image pixels.
func (t *Tesseract) Words(ctx context.Context, img []byte) ([]WordBox, error) {
	return runBlocking(ctx, func() ([]WordBox, error) {
		client, err := t.client(img)
		if err != nil {
			return nil, err
		}
		defer client.Close() //nolint:errcheck

		boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
		if err != nil {
			return nil, eris.Wrap(err, "ocr: tesseract bounding boxes")
		}
		out := make([]WordBox, 0, len(boxes))
		for _, b := range boxes {
			text := strings.TrimSpace(b.Word)
			if text == "" {
				continue
			}
			out = append(out, WordBox{Text: text, Box: b.Box, Confidence: b.Confidence})
		}
		return out, nil
	})
}

// Text returns the recognized plain text of the image.
func (t *Tesseract) Text(ctx context.Context, img []byte) (string, error) {
	return runBlocking(ctx, func() (string, error) {
		client, err := t.client(img)
		if err != nil {
			return "", err
		}
		defer client.Close() //nolint:errcheck

		text, err := client.Text()
		if err != nil {
			return "", eris.Wrap(err, "ocr: tesseract text")
		}
		return text, nil
	})
}

func (t *Tesseract) client(img []byte) (*gosseract.Client, error) {
	client := gosseract.NewClient()
	if t.tessdataPrefix != "" {
		client.SetTessdataPrefix(t.tessdataPrefix)
	}
	if err := client.SetLanguage(t.languages...); err != nil {
		client.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "ocr: tesseract language")
	}
	if err := client.SetImageFromBytes(img); err != nil {
		client.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "ocr: tesseract image")
	}
	return client, nil
}

// runBlocking runs fn and returns early when ctx ends. libtesseract cannot be
// interrupted, so fn keeps running to completion in the background.
func runBlocking[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, eris.Wrap(ctx.Err(), "ocr: tesseract")
	case r := <-ch:
		return r.v, r.err
	}
}
