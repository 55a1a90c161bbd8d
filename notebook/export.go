package notebook

import (
	"context"
	"fmt"

	"github.com/vishaltelangre/nerdcalci/archive"
	"github.com/vishaltelangre/nerdcalci/notebook/internal/store"
)

// ExportAll returns every document with its lines, for archiving.
func (n *Notebook) ExportAll(ctx context.Context) ([]archive.Document, error) {
	docs, err := n.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]archive.Document, 0, len(docs))
	for _, doc := range docs {
		lines, err := n.store.Lines(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		ad := archive.Document{Name: doc.Name}
		for _, ln := range lines {
			ad.Lines = append(ad.Lines, archive.Line{Expression: ln.Expression, Result: ln.Result})
		}
		out = append(out, ad)
	}
	return out, nil
}

// ImportAll merges parsed documents into the notebook. A document whose
// name already exists is overwritten in place, keeping its ID; others are
// created. Every imported document is re-evaluated and its edit history
// dropped. Returns the number of documents imported.
func (n *Notebook) ImportAll(ctx context.Context, docs []archive.Parsed) (int, error) {
	imported := 0
	for _, parsed := range docs {
		if err := n.importOne(ctx, parsed); err != nil {
			return imported, fmt.Errorf("import %q: %w", parsed.Name, err)
		}
		imported++
	}
	if imported > 0 {
		n.logger.Info("import complete", "documents", imported)
	}
	return imported, nil
}

func (n *Notebook) importOne(ctx context.Context, parsed archive.Parsed) error {
	existing, err := n.store.GetDocumentByName(ctx, parsed.Name)
	if err != nil {
		return err
	}
	var docID int64
	if existing != nil {
		docID = existing.ID
	} else {
		doc := &store.Document{Name: parsed.Name}
		if _, err := n.store.InsertDocument(ctx, doc); err != nil {
			return err
		}
		docID = doc.ID
	}

	l := n.lockFor(docID)
	l.Lock()
	defer l.Unlock()

	results := make([]string, len(parsed.Expressions))
	if err := n.store.ReplaceLines(ctx, docID, parsed.Expressions, results); err != nil {
		return err
	}
	n.history.Forget(docID)
	_, err = n.reevaluate(ctx, docID)
	return err
}

// RenderText returns a document's plain-text rendering, the same format
// used for archive entries.
func (n *Notebook) RenderText(ctx context.Context, docID int64) (string, error) {
	doc, err := n.store.GetDocument(ctx, docID)
	if err != nil {
		return "", err
	}
	if doc == nil {
		return "", fmt.Errorf("document %d: %w", docID, ErrNotFound)
	}
	lines, err := n.store.Lines(ctx, docID)
	if err != nil {
		return "", err
	}
	ad := archive.Document{Name: doc.Name}
	for _, ln := range lines {
		ad.Lines = append(ad.Lines, archive.Line{Expression: ln.Expression, Result: ln.Result})
	}
	return archive.Render(ad), nil
}
