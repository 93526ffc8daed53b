package params

import (
	"bytes"
	stderrors "errors"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/libraw-wasm/errors"
)

// LoadRequest decodes a YAML or JSON settings document. An empty document
// yields an empty request.
func LoadRequest(r io.Reader) (Request, error) {
	req := Request{}
	if err := yaml.NewDecoder(r).Decode(&req); err != nil {
		if stderrors.Is(err, io.EOF) {
			return Request{}, nil
		}
		return nil, errors.ParseFailed("settings", err)
	}
	return req, nil
}

// LoadRequestFile reads settings from path.
func LoadRequestFile(path string) (Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseParse, errors.KindNotFound, err, "read settings file")
	}
	return LoadRequest(bytes.NewReader(data))
}
