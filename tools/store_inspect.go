// Command store_inspect prints the documents of a roomsync Badger store as a
// table, optionally restricted to one collection.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"roomsync/infrastructure/storage"
	"roomsync/internal"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	collection := flag.String("collection", "", "Collection path to list, e.g. rooms or rooms/<id>/messages")
	flag.Parse()

	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Collection", "ID", "Fields"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	prefix := []byte("doc:")
	if *collection != "" {
		prefix = []byte(strings.TrimSuffix(string(storage.DocumentKey(*collection+"/x")), "x"))
	}

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			path, ok := storage.PathFromKey(item.Key())
			if !ok {
				continue
			}
			i := strings.LastIndex(path, "/")
			err := item.Value(func(v []byte) error {
				fields, err := storage.DecodeValue(v)
				if err != nil {
					fmt.Printf("Error decoding key %s: %v\n", string(item.Key()), err)
					return nil
				}
				table.Append([]string{path[:i], path[i+1:], internal.FormatFields(fields)})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}
