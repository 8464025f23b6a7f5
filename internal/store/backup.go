package store

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/il0/telegram-bot-robert/internal/clock"
)

const backupPattern = "backup_*.json"

// BackupManager 负责定期快照的落盘、轮换与损坏后的恢复。
// 备份文件是主存储的带时间戳兄弟文件，自身完整、可独立加载。
type BackupManager struct {
	dir       string
	retention int
	clk       *clock.Clock
}

// NewBackupManager 构造 BackupManager，retention 是保留的备份份数。
func NewBackupManager(dir string, retention int, clk *clock.Clock) *BackupManager {
	if retention <= 0 {
		retention = 7
	}
	return &BackupManager{dir: dir, retention: retention, clk: clk}
}

// CreateBackup 把一份快照写成新的备份文件并淘汰最旧的超额备份。
func (m *BackupManager) CreateBackup(snapshot *Database) (string, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", &PersistenceError{Op: "create backup directory", Err: err}
	}

	name := fmt.Sprintf("backup_%s.json", m.clk.Now().Format("20060102_150405"))
	path := filepath.Join(m.dir, name)

	data, err := encodeDatabase(snapshot)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", &PersistenceError{Op: "write backup", Err: err}
	}

	if err := m.prune(); err != nil {
		// 轮换失败不影响刚写好的备份，记录后继续
		log.Printf("backup rotation failed: %v", err)
	}
	return path, nil
}

// RestoreLatest 从新到旧逐个校验备份文件,返回第一份有效的文档。
// 所有备份都无效时返回 ErrNoValidBackup。
func (m *BackupManager) RestoreLatest() (*Database, string, error) {
	names, err := m.list()
	if err != nil {
		return nil, "", err
	}

	for i := len(names) - 1; i >= 0; i-- {
		path := names[i]
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("skip unreadable backup %s: %v", path, err)
			continue
		}
		db, err := decodeDatabase(data)
		if err != nil {
			log.Printf("skip invalid backup %s: %v", path, err)
			continue
		}
		return db, path, nil
	}
	return nil, "", ErrNoValidBackup
}

// list 返回按文件名升序排列的备份路径，时间戳命名保证旧在前。
func (m *BackupManager) list() ([]string, error) {
	names, err := filepath.Glob(filepath.Join(m.dir, backupPattern))
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (m *BackupManager) prune() error {
	names, err := m.list()
	if err != nil {
		return err
	}
	for len(names) > m.retention {
		oldest := names[0]
		names = names[1:]
		if err := os.Remove(oldest); err != nil {
			return fmt.Errorf("remove old backup %s: %w", oldest, err)
		}
		log.Printf("removed old backup: %s", oldest)
	}
	return nil
}

func encodeDatabase(db *Database) ([]byte, error) {
	if err := db.validate(); err != nil {
		return nil, fmt.Errorf("refuse to back up invalid document: %w", err)
	}
	data, err := marshalDatabase(db)
	if err != nil {
		return nil, &PersistenceError{Op: "marshal backup", Err: err}
	}
	return data, nil
}
