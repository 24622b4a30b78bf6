package store

import (
	"database/sql"
	"fmt"
	"time"
)

// CommitBatch applies every buffered operation within a single transaction.
// Child rows of a file are removed through ON DELETE CASCADE, so a Put is a
// delete followed by fresh inserts and a Rename only touches the files row.
func (s *Store) CommitBatch(batch *Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, op := range batch.ops {
		switch op.kind {
		case opDelete:
			if err := deleteFileTx(tx, op.path); err != nil {
				return fmt.Errorf("commit batch: delete %s: %w", op.path, err)
			}
		case opRename:
			if err := renameFileTx(tx, op.path, op.to); err != nil {
				return fmt.Errorf("commit batch: rename %s -> %s: %w", op.path, op.to, err)
			}
		case opPut:
			if err := putFileTx(tx, op.path, op.hash, op.result, now); err != nil {
				return fmt.Errorf("commit batch: put %s: %w", op.path, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: commit: %w", err)
	}
	return nil
}

func deleteFileTx(tx *sql.Tx, path string) error {
	_, err := tx.Exec("DELETE FROM files WHERE path = ?", path)
	return err
}

func renameFileTx(tx *sql.Tx, from, to string) error {
	if from == to {
		return nil
	}
	if err := deleteFileTx(tx, to); err != nil {
		return err
	}
	_, err := tx.Exec("UPDATE files SET path = ? WHERE path = ?", to, from)
	return err
}

func putFileTx(tx *sql.Tx, path string, hash Fingerprint, res *AnalysisResult, now time.Time) error {
	if err := deleteFileTx(tx, path); err != nil {
		return err
	}
	r, err := tx.Exec(
		"INSERT INTO files (path, language, hash, last_indexed) VALUES (?, ?, ?, ?)",
		path, res.Language, hash.String(), now,
	)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	fileID, err := r.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}

	for i, name := range res.Functions {
		if _, err := tx.Exec(
			"INSERT INTO functions (file_id, ordinal, name) VALUES (?, ?, ?)", fileID, i, name,
		); err != nil {
			return fmt.Errorf("insert function %q: %w", name, err)
		}
	}

	for i, class := range res.Classes.Names() {
		r, err := tx.Exec(
			"INSERT INTO classes (file_id, ordinal, name) VALUES (?, ?, ?)", fileID, i, class,
		)
		if err != nil {
			return fmt.Errorf("insert class %q: %w", class, err)
		}
		classID, err := r.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		for j, method := range res.Classes.Methods(class) {
			if _, err := tx.Exec(
				"INSERT INTO methods (class_id, ordinal, name) VALUES (?, ?, ?)", classID, j, method,
			); err != nil {
				return fmt.Errorf("insert method %q: %w", method, err)
			}
		}
	}

	for i, rb := range res.Routes {
		if _, err := tx.Exec(
			"INSERT INTO routes (file_id, ordinal, target_kind, target, method, path) VALUES (?, ?, ?, ?, ?, ?)",
			fileID, i, rb.TargetKind(), rb.Target(), rb.Method, rb.Path,
		); err != nil {
			return fmt.Errorf("insert route %s %s: %w", rb.Method, rb.Path, err)
		}
	}
	return nil
}
