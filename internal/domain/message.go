package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BlockType identifies a typed content block inside a message.
type BlockType string

const (
	BlockText  BlockType = "text"
	BlockImage BlockType = "image_url"
	BlockFile  BlockType = "file"
)

// ContentBlock is one element of a typed-block message content list.
type ContentBlock struct {
	Type BlockType `json:"type"`

	Text     string `json:"text,omitempty"`
	ImageURL string `json:"-"`
	FileURL  string `json:"url,omitempty"`
	Name     string `json:"name,omitempty"`
}

type imageURLWrapper struct {
	URL string `json:"url"`
}

type contentBlockWire struct {
	Type     BlockType        `json:"type"`
	Text     string           `json:"text,omitempty"`
	ImageURL *imageURLWrapper `json:"image_url,omitempty"`
	FileURL  string           `json:"url,omitempty"`
	Name     string           `json:"name,omitempty"`
}

// MarshalJSON writes the block in its wire form, nesting the image URL
// the way chat-completions style APIs expect.
func (b ContentBlock) MarshalJSON() ([]byte, error) {
	w := contentBlockWire{Type: b.Type, Text: b.Text, FileURL: b.FileURL, Name: b.Name}
	if b.Type == BlockImage {
		w.ImageURL = &imageURLWrapper{URL: b.ImageURL}
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts the nested wire form.
func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	var w contentBlockWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	b.Type = w.Type
	b.Text = w.Text
	b.FileURL = w.FileURL
	b.Name = w.Name
	if w.ImageURL != nil {
		b.ImageURL = w.ImageURL.URL
	}
	switch w.Type {
	case BlockText, BlockImage, BlockFile:
		return nil
	default:
		return fmt.Errorf("unknown content block type %q", w.Type)
	}
}

// MessageContent is either plain text or an ordered list of typed blocks.
// Exactly one of Text/Blocks is meaningful; IsBlocks distinguishes an
// empty string from an empty block list.
type MessageContent struct {
	Text     string
	Blocks   []ContentBlock
	IsBlocks bool
}

// UnmarshalJSON accepts a JSON string or an array of blocks.
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		c.IsBlocks = true
		return json.Unmarshal(data, &c.Blocks)
	}
	c.IsBlocks = false
	return json.Unmarshal(data, &c.Text)
}

// MarshalJSON writes back whichever form the content carries.
func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.IsBlocks {
		return json.Marshal(c.Blocks)
	}
	return json.Marshal(c.Text)
}

// PlainText flattens the content to text: the string itself, or the
// concatenation of all text blocks.
func (c MessageContent) PlainText() string {
	if !c.IsBlocks {
		return c.Text
	}
	var parts []string
	for _, b := range c.Blocks {
		if b.Type == BlockText && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Message is one conversational turn element.
type Message struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}

// TextMessage builds a plain-text message.
func TextMessage(role, text string) Message {
	return Message{Role: role, Content: MessageContent{Text: text}}
}

// LastOfRole returns the last message with the given role, or nil.
func LastOfRole(messages []Message, role string) *Message {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == role {
			return &messages[i]
		}
	}
	return nil
}

// FileRefs returns the file blocks of the message, in order.
func (m Message) FileRefs() []ContentBlock {
	var refs []ContentBlock
	for _, b := range m.Content.Blocks {
		if b.Type == BlockFile {
			refs = append(refs, b)
		}
	}
	return refs
}

// ImageRefs returns the image blocks of the message, in order.
func (m Message) ImageRefs() []ContentBlock {
	var refs []ContentBlock
	for _, b := range m.Content.Blocks {
		if b.Type == BlockImage {
			refs = append(refs, b)
		}
	}
	return refs
}
