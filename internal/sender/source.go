package sender

import (
	"errors"
	"io/fs"
	"os"

	"hl7tools/internal/hl7"
)

// Source is one input message.
type Source struct {
	Name string
	Read func() ([]byte, error)
}

// FileSource reads a message file.
func FileSource(path string) Source {
	return Source{Name: path, Read: func() ([]byte, error) { return os.ReadFile(path) }}
}

// TextSource serves a message held in memory.
func TextSource(name, text string) Source {
	return Source{Name: name, Read: func() ([]byte, error) { return []byte(text), nil }}
}

// FileSources wraps every path.
func FileSources(paths []string) []Source {
	out := make([]Source, len(paths))
	for i, p := range paths {
		out[i] = FileSource(p)
	}
	return out
}

// Load reads and parses src. Files store one segment per line; line
// endings are turned into the segment terminator before parsing.
func Load(src Source) (*hl7.Message, error) {
	data, err := src.Read()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, newError(KindFileNotFound, src.Name, err)
		}
		return nil, newError(KindInvalidMessage, src.Name, err)
	}

	msg, err := hl7.Parse(ToWire(string(data)))
	if err != nil {
		return nil, newError(KindInvalidMessage, src.Name, err)
	}
	return msg, nil
}

// ToWire converts file line endings (\r\n or \n) to '\r'.
func ToWire(text string) string {
	return hl7.NormalizeTerminators(text)
}
