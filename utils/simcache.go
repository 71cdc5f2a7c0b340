package utils

import (
	"database/sql"
	"encoding/json"

	"github.com/ldsec/pertNet/common"
	_ "modernc.org/sqlite"
)

// SimCache persists computed similarity networks keyed by their dataset
// identity fingerprint, so repeated runs on the same dataset/split/seed skip
// the quadratic similarity computation.
type SimCache struct {
	db *sql.DB
}

func OpenSimCache(path string) (*SimCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS simnetworks (
			fingerprint TEXT PRIMARY KEY,
			payload     BLOB NOT NULL
		)`)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SimCache{db: db}, nil
}

func (c *SimCache) Get(fingerprint string) (*common.EdgeList, bool, error) {
	var payload []byte
	err := c.db.QueryRow(`SELECT payload FROM simnetworks WHERE fingerprint = ?`, fingerprint).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	el := &common.EdgeList{}
	if err := json.Unmarshal(payload, el); err != nil {
		return nil, false, err
	}
	return el, true, nil
}

func (c *SimCache) Put(fingerprint string, el *common.EdgeList) error {
	payload, err := json.Marshal(el)
	if err != nil {
		return err
	}
	_, err = c.db.Exec(`
		INSERT INTO simnetworks (fingerprint, payload) VALUES (?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET payload = excluded.payload`,
		fingerprint, payload)
	return err
}

func (c *SimCache) Close() error {
	return c.db.Close()
}
