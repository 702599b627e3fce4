package config

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"

	"gopkg.in/yaml.v3"
)

// LoadAppConfig reads per-section config files from dir and merges them over
// the defaults. Each section may exist as <name>.yaml or <name>.json; missing
// files leave the defaults intact.
func LoadAppConfig(dir string) (*AppConfig, error) {
	cfg := DefaultAppConfig()

	var server ServerConfig
	if err := loadFileInto(dir, "server", &server); err != nil {
		return nil, err
	}
	mergeInto(&cfg.Server, server)

	var security SecurityConfig
	if err := loadFileInto(dir, "security", &security); err != nil {
		return nil, err
	}
	mergeInto(&cfg.Security, security)

	var webrtc WebRTCConfig
	if err := loadFileInto(dir, "webrtc", &webrtc); err != nil {
		return nil, err
	}
	mergeInto(&cfg.WebRTC, webrtc)

	var session SessionConfig
	if err := loadFileInto(dir, "session", &session); err != nil {
		return nil, err
	}
	mergeInto(&cfg.Session, session)

	var ingest IngestConfig
	if err := loadFileInto(dir, "ingest", &ingest); err != nil {
		return nil, err
	}
	mergeInto(&cfg.Ingest, ingest)

	return &cfg, nil
}

func loadFileInto(dir, filenameBase string, target interface{}) error {
	basePath := filepath.Join(dir, filenameBase)

	if f, err := os.Open(basePath + ".yaml"); err == nil {
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(target); err != nil {
			if errors.Is(err, io.EOF) {
				slog.Warn("config file is empty, using defaults", "file", basePath+".yaml")
				return nil
			}
			return err
		}
		return nil
	}

	if f, err := os.Open(basePath + ".json"); err == nil {
		defer f.Close()
		if err := json.NewDecoder(f).Decode(target); err != nil {
			if errors.Is(err, io.EOF) {
				slog.Warn("config file is empty, using defaults", "file", basePath+".json")
				return nil
			}
			return err
		}
		return nil
	}

	return nil
}

func mergeInto(dst, src interface{}) {
	dstVal := reflect.ValueOf(dst).Elem()
	srcVal := reflect.ValueOf(src)

	mergeValues(dstVal, srcVal)
}

func mergeValues(dstVal, srcVal reflect.Value) {
	for i := 0; i < srcVal.NumField(); i++ {
		srcField := srcVal.Field(i)
		dstField := dstVal.Field(i)

		switch srcField.Kind() {
		case reflect.Struct:
			mergeValues(dstField, srcField)
		case reflect.Slice:
			if !srcField.IsNil() && srcField.Len() > 0 {
				dstField.Set(srcField)
			}
		case reflect.Pointer:
			if !srcField.IsNil() {
				dstField.Set(srcField)
			}
		default:
			if !srcField.IsZero() {
				dstField.Set(srcField)
			}
		}
	}
}
