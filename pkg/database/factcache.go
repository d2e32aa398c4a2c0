// Package database provides the persistent fact cache backing the fact
// store. Snapshots are stored per host with their gather time so callers can
// enforce a time-to-live.
package database

import (
	"encoding/json"
	"errors"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// FactRecord is one cached fact snapshot.
type FactRecord struct {
	gorm.Model
	HostName   string `gorm:"uniqueIndex"`
	Data       []byte
	GatheredAt time.Time
}

// FactCache is a sqlite-backed cache of fact snapshots keyed by host name.
type FactCache struct {
	db *gorm.DB
}

// NewFactCache opens (or creates) the cache database at the given path.
func NewFactCache(path string) (*FactCache, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&FactRecord{}); err != nil {
		return nil, err
	}

	return &FactCache{db: db}, nil
}

// Load returns the cached snapshot for a host if one exists and is younger
// than ttl. A ttl of zero disables expiry.
func (c *FactCache) Load(hostName string, ttl time.Duration) (map[string]interface{}, bool, error) {
	var record FactRecord
	err := c.db.Where("host_name = ?", hostName).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if ttl > 0 && time.Since(record.GatheredAt) > ttl {
		return nil, false, nil
	}

	var facts map[string]interface{}
	if err := json.Unmarshal(record.Data, &facts); err != nil {
		return nil, false, err
	}
	return facts, true, nil
}

// Store saves a snapshot for a host, replacing any previous entry.
func (c *FactCache) Store(hostName string, facts map[string]interface{}) error {
	data, err := json.Marshal(facts)
	if err != nil {
		return err
	}

	var record FactRecord
	err = c.db.Where("host_name = ?", hostName).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		record = FactRecord{HostName: hostName, Data: data, GatheredAt: time.Now()}
		return c.db.Create(&record).Error
	}
	if err != nil {
		return err
	}

	record.Data = data
	record.GatheredAt = time.Now()
	return c.db.Save(&record).Error
}

// Delete removes a host's cached snapshot.
func (c *FactCache) Delete(hostName string) error {
	return c.db.Where("host_name = ?", hostName).Delete(&FactRecord{}).Error
}
