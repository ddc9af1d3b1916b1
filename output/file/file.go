package file

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bytedance/sonic"

	"github.com/c360/micropipe/component"
	"github.com/c360/micropipe/errors"
	"github.com/c360/micropipe/message"
)

// Registration identity.
const (
	Name    = "file"
	Version = "1.0.0"
)

// Output formats.
const (
	FormatRaw   = "raw"
	FormatJSONL = "jsonl"
	FormatJSON  = "json"
)

// Settings keys.
const (
	SettingPath       = "path"
	SettingFormat     = "format"
	SettingAppend     = "append"
	SettingBufferSize = "bufferSize"
)

// Output appends message bodies to a file. Bodies are buffered and written
// once bufferSize messages are pending; Shutdown writes the rest.
type Output struct {
	component.Base

	path       string
	format     string
	append     bool
	bufferSize int
	logger     *slog.Logger

	fileMu sync.Mutex
	file   *os.File
	buffer [][]byte

	total           atomic.Int64
	messagesWritten atomic.Int64
	bytesWritten    atomic.Int64
	errors          atomic.Int64
}

// NewOutput creates an uninitialized file output.
func NewOutput(logger *slog.Logger) *Output {
	if logger == nil {
		logger = slog.Default()
	}
	return &Output{logger: logger}
}

// Register adds the file emitter factory to registry.
func Register(registry *component.Registry, deps component.Dependencies) error {
	logger := deps.GetLoggerWithComponent(Name)
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        Name,
		Version:     Version,
		Type:        string(component.TypeEmitter),
		Description: "Appends message bodies to a file",
		Factory: func() component.Component {
			return NewOutput(logger)
		},
	})
}

// Type implements component.Component.
func (f *Output) Type() component.Type {
	return component.TypeEmitter
}

// Initialize validates the settings, creates the parent directory and opens the file.
func (f *Output) Initialize(settings component.Settings) error {
	path, err := settings.Required(SettingPath)
	if err != nil {
		return err
	}
	format := strings.ToLower(settings.String(SettingFormat, FormatJSONL))
	switch format {
	case FormatRaw, FormatJSONL, FormatJSON:
	default:
		return errors.Cause(errors.ErrComponentInitializationFailed,
			fmt.Errorf("format must be one of: raw, jsonl, json; got %q", format))
	}
	appendMode, err := settings.Bool(SettingAppend, true)
	if err != nil {
		return err
	}
	bufferSize, err := settings.Int(SettingBufferSize, 1)
	if err != nil {
		return err
	}
	if bufferSize < 1 {
		bufferSize = 1
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Cause(errors.ErrComponentInitializationFailed,
			errors.WrapFatal(err, "Output", "Initialize", "create output directory"))
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return errors.Cause(errors.ErrComponentInitializationFailed,
			errors.WrapFatal(err, "Output", "Initialize", "open output file"))
	}

	f.path = path
	f.format = format
	f.append = appendMode
	f.bufferSize = bufferSize
	f.file = file
	f.buffer = make([][]byte, 0, bufferSize)
	f.logger = f.logger.With("id", f.ID())

	f.logger.Debug("File output opened", "path", path, "format", format, "append", appendMode,
		"buffer_size", bufferSize)
	return nil
}

// OnMessage buffers the formatted body and writes the buffer when full.
func (f *Output) OnMessage(_ context.Context, msg message.Message) error {
	f.total.Add(1)

	data, err := f.encode(msg.Body)
	if err != nil {
		f.errors.Add(1)
		return errors.WrapInvalid(err, "Output", "OnMessage", "format "+f.format)
	}

	f.fileMu.Lock()
	defer f.fileMu.Unlock()

	if f.file == nil {
		f.errors.Add(1)
		return errors.WrapFatal(os.ErrClosed, "Output", "OnMessage", "write to closed output")
	}
	f.buffer = append(f.buffer, data)
	if len(f.buffer) < f.bufferSize {
		return nil
	}
	return f.flushLocked()
}

func (f *Output) encode(body []byte) ([]byte, error) {
	switch f.format {
	case FormatRaw:
		return body, nil
	case FormatJSON:
		var out bytes.Buffer
		if err := json.Indent(&out, body, "", "  "); err != nil {
			return nil, err
		}
		out.WriteByte('\n')
		return out.Bytes(), nil
	default:
		if !sonic.Valid(body) {
			return nil, fmt.Errorf("%w: body is not a JSON value", errors.ErrInvalidData)
		}
		line := make([]byte, 0, len(body)+1)
		line = append(line, body...)
		return append(line, '\n'), nil
	}
}

// flushLocked writes every buffered entry. fileMu must be held.
func (f *Output) flushLocked() error {
	pending := f.buffer
	f.buffer = make([][]byte, 0, f.bufferSize)

	var failed int
	var firstErr error
	for _, data := range pending {
		n, err := f.file.Write(data)
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		f.messagesWritten.Add(1)
		f.bytesWritten.Add(int64(n))
	}
	if firstErr != nil {
		f.errors.Add(int64(failed))
		f.logger.Error("Failed to write messages to file", "path", f.path, "failed", failed, "error", firstErr)
		return errors.WrapTransient(firstErr, "Output", "flush", "write output file")
	}
	return nil
}

// TotalNumOfMessages implements component.Emitter.
func (f *Output) TotalNumOfMessages() int64 {
	return f.total.Load()
}

// Written returns the messages and bytes written to disk.
func (f *Output) Written() (messages, size int64) {
	return f.messagesWritten.Load(), f.bytesWritten.Load()
}

// Path returns the output file path.
func (f *Output) Path() string {
	return f.path
}

// Shutdown writes the remaining buffer and closes the file.
func (f *Output) Shutdown() error {
	f.fileMu.Lock()
	defer f.fileMu.Unlock()

	if f.file == nil {
		return nil
	}

	var err error
	if len(f.buffer) > 0 {
		err = f.flushLocked()
	}
	if closeErr := f.file.Close(); closeErr != nil {
		err = errors.Join(err, errors.Wrap(closeErr, "Output", "Shutdown", "close output file"))
	}
	f.file = nil

	written, _ := f.Written()
	f.logger.Info("File output closed", "path", f.path, "messages_written", written,
		"errors", f.errors.Load())
	return err
}
