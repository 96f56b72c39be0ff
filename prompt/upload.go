package prompt

import "fmt"

type (
	// Upload is the resolved form of an ImagePart: base64 bytes plus the
	// metadata dialects need to build provider image blocks.
	Upload struct {
		Base64   string
		MimeType string
		Width    int
		Height   int
	}

	// UploadResolver resolves opaque upload identifiers to encoded bytes.
	// Implementations downscale the image when it would exceed maxPixels.
	// The resolver is an external collaborator (typically backed by the
	// application's upload store); this package depends only on the
	// contract.
	UploadResolver interface {
		Encode(uploadID int64, maxPixels int) (Upload, error)
	}

	// EncodedPart is a message content fragment with uploads resolved to
	// wire bytes. Exactly one of Text or Image is meaningful.
	EncodedPart struct {
		Text  string
		Image *Upload
	}
)

// EncodedContent resolves the message's content to wire-ready parts using
// the prompt's pixel budget. Resolution happens here, lazily, rather than at
// push time: only dialects that actually send image bytes pay for it.
func (p *Prompt) EncodedContent(m Message, resolver UploadResolver) ([]EncodedPart, error) {
	out := make([]EncodedPart, 0, len(m.Content))
	for _, part := range m.Content {
		switch v := part.(type) {
		case TextPart:
			out = append(out, EncodedPart{Text: v.Text})
		case ImagePart:
			if resolver == nil {
				return nil, fmt.Errorf("prompt: upload %d referenced but no resolver configured", v.UploadID)
			}
			up, err := resolver.Encode(v.UploadID, p.maxPixels)
			if err != nil {
				return nil, fmt.Errorf("prompt: encode upload %d: %w", v.UploadID, err)
			}
			out = append(out, EncodedPart{Image: &up})
		}
	}
	return out, nil
}
