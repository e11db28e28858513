package cache

import (
	"errors"
	"fmt"
)

type Key struct {
	// ProjectID optional for keys shared across projects.
	ProjectID uint64
	// Prefix - Helps better grouping and searching
	// i.e table_name + index_name
	Prefix string
	// Suffix - optional
	Suffix string
}

var (
	ErrorInvalidProject = errors.New("invalid key project")
	ErrorInvalidPrefix  = errors.New("invalid key prefix")
	ErrorInvalidKey     = errors.New("invalid redis cache key")
)

func NewKey(projectID uint64, prefix string, suffix string) (*Key, error) {
	if projectID == 0 {
		return nil, ErrorInvalidProject
	}

	if prefix == "" {
		return nil, ErrorInvalidPrefix
	}

	return &Key{ProjectID: projectID, Prefix: prefix, Suffix: suffix}, nil
}

func NewKeyWithOnlyPrefix(prefix string) (*Key, error) {
	if prefix == "" {
		return nil, ErrorInvalidPrefix
	}

	return &Key{Prefix: prefix}, nil
}

func (key *Key) Key() (string, error) {
	if key.Prefix == "" {
		return "", ErrorInvalidPrefix
	}

	if key.ProjectID == 0 {
		return key.Prefix, nil
	}

	// key: i.e, insight:result:pid:1:cache_xyz
	return fmt.Sprintf("%s:pid:%d:%s", key.Prefix, key.ProjectID, key.Suffix), nil
}
