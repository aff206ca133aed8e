package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"
)

// FileRegistry 把已发布链接保存在一个 JSON 文件里：{"posted_links": [...]}。
// 每次检查/写入都重新读文件，不持有长期的文件锁。
type FileRegistry struct {
	path string
	max  int
	mu   sync.Mutex
}

func NewFileRegistry(path string, max int) *FileRegistry {
	return &FileRegistry{path: path, max: capacity(max)}
}

type postedLinksFile struct {
	PostedLinks []string `json:"posted_links"`
}

// load 文件不存在、不可读或格式错误时都当作空列表
func (r *FileRegistry) load() []string {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("file", r.path).Msg("could not load posted links")
		}
		return nil
	}

	var doc postedLinksFile
	if err := json.Unmarshal(data, &doc); err == nil {
		return doc.PostedLinks
	}
	// 兼容直接存成数组的旧格式
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		return list
	}
	log.Warn().Str("file", r.path).Msg("posted links file is corrupt, treating as empty")
	return nil
}

func (r *FileRegistry) save(links []string) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	data, err := json.MarshalIndent(postedLinksFile{PostedLinks: links}, "", " ")
	if err != nil {
		return err
	}

	// 先写临时文件再 rename，避免写到一半留下损坏的文件
	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".posted_links-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), r.path)
}

func (r *FileRegistry) IsPosted(_ context.Context, link string) bool {
	link = normalizeLink(link)
	if link == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Contains(r.load(), link)
}

func (r *FileRegistry) MarkPosted(_ context.Context, link string) {
	link = normalizeLink(link)
	if link == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	links := r.load()
	if slices.Contains(links, link) {
		return
	}
	links = append(links, link)
	if len(links) > r.max {
		links = links[len(links)-r.max:]
	}
	if err := r.save(links); err != nil {
		log.Error().Err(err).Str("file", r.path).Str("link", link).Msg("could not save posted links")
	}
}

func (r *FileRegistry) Links(context.Context) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

func (r *FileRegistry) Close() error { return nil }
