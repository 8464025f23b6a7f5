package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var (
	// ErrCorrupted 在存储文件结构校验失败时返回
	ErrCorrupted = errors.New("store file failed validation")
	// ErrNoValidBackup 在损坏后找不到任何可用备份时返回
	ErrNoValidBackup = errors.New("no valid backup available")
)

// PersistenceError 表示提交或备份时的磁盘写入失败。
// 内存状态此时并未回滚，调用方应把结果报告为“未持久保存”。
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Store 是所有实体的单一事实来源：内存缓存的完整文档加上落盘路径。
// 所有变更必须经过 Commit 串行化，内部互斥锁保证并发打卡不会交错
// 读改写共享的总量数据。
type Store struct {
	mu   sync.Mutex
	path string
	db   *Database
}

// New 构造未加载的 Store。
func New(path string) *Store {
	return &Store{path: path, db: NewDatabase()}
}

// Path 返回主存储文件路径。
func (s *Store) Path() string {
	return s.path
}

// Load 启动时读入持久化状态。文件缺失时初始化空文档；文件存在但校验
// 失败时尝试从最近备份恢复，恢复成功立即重新落盘；没有可用备份则返回
// 错误，拒绝带着已知损坏的存储启动。
func (s *Store) Load(backups *BackupManager) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ensureParentDir(s.path); err != nil {
		return fmt.Errorf("prepare store directory: %w", err)
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.db = NewDatabase()
		return nil
	}
	if err != nil {
		return fmt.Errorf("read store file: %w", err)
	}

	db, loadErr := decodeDatabase(data)
	if loadErr == nil {
		s.db = db
		return nil
	}

	if backups == nil {
		return fmt.Errorf("%w: %v", ErrCorrupted, loadErr)
	}

	restored, name, restoreErr := backups.RestoreLatest()
	if restoreErr != nil {
		return fmt.Errorf("%w (restore failed: %v)", ErrCorrupted, restoreErr)
	}

	s.db = restored
	if err := s.writeLocked(); err != nil {
		return fmt.Errorf("re-commit restored backup %s: %w", name, err)
	}
	return nil
}

// Commit 在锁内应用变更函数，然后把整个文档原子落盘。
// 变更函数返回错误时不落盘、不保留改动以外的额外语义；写盘失败返回
// *PersistenceError，内存改动保留，等待下一次成功提交。
func (s *Store) Commit(mutate func(*Database) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := mutate(s.db); err != nil {
		return err
	}
	return s.writeLocked()
}

// View 在锁内执行只读访问。
func (s *Store) View(fn func(*Database)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.db)
}

// Snapshot 返回与后续变更解耦的只读深拷贝，供备份任务使用。
func (s *Store) Snapshot() *Database {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Clone()
}

// writeLocked 执行写临时文件再重命名的原子落盘。
// 崩溃发生在重命名前旧文件完好，发生在重命名后新文件完好，
// 规范路径上永远不会出现中间状态。
func (s *Store) writeLocked() error {
	data, err := marshalDatabase(s.db)
	if err != nil {
		return &PersistenceError{Op: "marshal", Err: err}
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return &PersistenceError{Op: "open temp file", Err: err}
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return &PersistenceError{Op: "write temp file", Err: err}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return &PersistenceError{Op: "sync temp file", Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return &PersistenceError{Op: "close temp file", Err: err}
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return &PersistenceError{Op: "rename temp file", Err: err}
	}
	return nil
}

func marshalDatabase(db *Database) ([]byte, error) {
	return json.MarshalIndent(db, "", "  ")
}

// decodeDatabase 反序列化并校验一份完整文档。
func decodeDatabase(data []byte) (*Database, error) {
	var db Database
	if err := json.Unmarshal(data, &db); err != nil {
		return nil, fmt.Errorf("decode store document: %w", err)
	}
	db.normalize()
	if err := db.validate(); err != nil {
		return nil, fmt.Errorf("validate store document: %w", err)
	}
	return &db, nil
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}

	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return errors.New("store path parent is not a directory")
		}
		return nil
	}

	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}

	return err
}
