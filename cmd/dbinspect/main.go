// Command dbinspect dumps the badger store for support: what the catalog
// holds, where listening stopped, which settings are set. Read-only.
package main

import (
	"encoding/json/v2"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/aloudapp/aloud-server/internal/domain"
)

func main() {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("resolving home dir: %v", err)
		}
		dbPath = filepath.Join(home, "Aloud", "data", "store")
	}

	opts := badger.DefaultOptions(dbPath).
		WithReadOnly(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("opening store at %s: %v", dbPath, err)
	}
	defer db.Close()

	fmt.Printf("=== Store at %s ===\n\n", dbPath)

	err = db.View(func(txn *badger.Txn) error {
		dumpBooks(txn)
		dumpProgress(txn)
		dumpVoicePreference(txn)
		dumpAccount(txn)
		return nil
	})
	if err != nil {
		log.Fatalf("reading store: %v", err)
	}
}

func dumpBooks(txn *badger.Txn) {
	fmt.Println("Books:")

	count := 0
	shown := 0
	iterate(txn, "book:", func(key string, val []byte) {
		var book domain.Book
		if err := json.Unmarshal(val, &book); err != nil {
			fmt.Printf("  %s: unreadable record: %v\n", key, err)
			return
		}
		count++
		if shown < 5 {
			shown++
			fmt.Printf("  %s\n", book.Title)
			fmt.Printf("    id=%s format=%s chapters=%d chunks=%d\n",
				book.ID, book.Format, book.ChapterCount, book.TotalChunks)
			fmt.Printf("    path=%s\n", book.Path)
		}
	})
	if count > shown {
		fmt.Printf("  ... and %d more\n", count-shown)
	}
	if count == 0 {
		fmt.Println("  none")
	}

	// Index counts should match the record count; drift means a damaged store.
	fmt.Printf("  total=%d path_index=%d identity_index=%d\n\n",
		count, countPrefix(txn, "idx:books:path:"), countPrefix(txn, "idx:books:identity:"))
}

func dumpProgress(txn *badger.Txn) {
	fmt.Println("Progress:")

	n := 0
	iterate(txn, "progress:", func(key string, val []byte) {
		var p domain.Progress
		if err := json.Unmarshal(val, &p); err != nil {
			fmt.Printf("  %s: unreadable record: %v\n", key, err)
			return
		}
		n++
		fmt.Printf("  %s chapter=%d chunk=%d updated=%s\n",
			p.BookID, p.Chapter, p.Chunk, p.UpdatedAt.Format(time.RFC3339))
	})
	if n == 0 {
		fmt.Println("  none")
	}
	fmt.Println()
}

func dumpVoicePreference(txn *badger.Txn) {
	fmt.Println("Voice preference:")

	item, err := txn.Get([]byte("settings:voice"))
	if errors.Is(err, badger.ErrKeyNotFound) {
		fmt.Println("  none (engine default)")
		fmt.Println()
		return
	}
	if err != nil {
		fmt.Printf("  error: %v\n\n", err)
		return
	}

	_ = item.Value(func(val []byte) error {
		var pref domain.VoicePreference
		if err := json.Unmarshal(val, &pref); err != nil {
			fmt.Printf("  unreadable record: %v\n", err)
			return nil
		}
		fmt.Printf("  voice=%q rate=%.2f updated=%s\n",
			pref.VoiceID, pref.Rate, pref.UpdatedAt.Format(time.RFC3339))
		return nil
	})
	fmt.Println()
}

func dumpAccount(txn *badger.Txn) {
	fmt.Println("Owner account:")

	item, err := txn.Get([]byte("account:owner"))
	if errors.Is(err, badger.ErrKeyNotFound) {
		fmt.Println("  not set up")
	} else if err != nil {
		fmt.Printf("  error: %v\n", err)
	} else {
		_ = item.Value(func(val []byte) error {
			var acct domain.Account
			if err := json.Unmarshal(val, &acct); err != nil {
				fmt.Printf("  unreadable record: %v\n", err)
				return nil
			}
			// Never print the password hash.
			fmt.Printf("  username=%s created=%s\n",
				acct.Username, acct.CreatedAt.Format(time.RFC3339))
			return nil
		})
	}

	fmt.Printf("  refresh_tokens=%d\n", countPrefix(txn, "token:"))
}

func iterate(txn *badger.Txn, prefix string, fn func(key string, val []byte)) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
		item := it.Item()
		key := string(item.Key())
		if err := item.Value(func(val []byte) error {
			fn(key, val)
			return nil
		}); err != nil {
			log.Printf("reading %s: %v", key, err)
		}
	}
}

func countPrefix(txn *badger.Txn, prefix string) int {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	n := 0
	for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
		n++
	}
	return n
}
