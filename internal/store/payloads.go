package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"io"

	"github.com/rotisserie/eris"
)

// compressPayload gzips payload and returns it with the hex sha256 of the raw bytes.
func compressPayload(payload []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return nil, "", eris.Wrap(err, "compress payload")
	}
	if err := gz.Close(); err != nil {
		return nil, "", eris.Wrap(err, "close gzip")
	}

	hash := sha256.Sum256(payload)
	return buf.Bytes(), hex.EncodeToString(hash[:]), nil
}

func decompressPayload(compressed []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, eris.Wrap(err, "create gzip reader")
	}
	defer gz.Close()

	data, err := io.ReadAll(gz)
	if err != nil {
		return nil, eris.Wrap(err, "decompress payload")
	}
	return data, nil
}

// StoreUploadPayload archives the source file of an upload. A file already
// archived (same hash) is not stored again; the existing id is returned.
func (s *SQLiteStore) StoreUploadPayload(ctx context.Context, uploadID, filename string, payload []byte) (int64, error) {
	compressed, hash, err := compressPayload(payload)
	if err != nil {
		return 0, err
	}

	var upload sql.NullString
	if uploadID != "" {
		upload = sql.NullString{String: uploadID, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO upload_payloads (upload_id, filename, payload_hash, size_bytes, payload_compressed, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(payload_hash) DO NOTHING
	`, upload, filename, hash, len(payload), compressed, nowUTC())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: insert upload payload")
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM upload_payloads WHERE payload_hash = ?`, hash).Scan(&id); err != nil {
		return 0, eris.Wrap(err, "sqlite: get upload payload id")
	}
	return id, nil
}

// GetUploadPayload returns the decompressed source file.
func (s *SQLiteStore) GetUploadPayload(ctx context.Context, id int64) ([]byte, error) {
	var compressed []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload_compressed FROM upload_payloads WHERE id = ?`, id).
		Scan(&compressed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get upload payload %d", id)
	}
	return decompressPayload(compressed)
}
