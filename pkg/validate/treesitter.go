package validate

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// TreeSitter validates Python with the tree-sitter grammar. A parser is
// created per call since tree-sitter parsers are not goroutine safe.
type TreeSitter struct {
	lang *sitter.Language
}

// NewTreeSitter returns a tree-sitter backed validator.
func NewTreeSitter() *TreeSitter {
	return &TreeSitter{lang: python.GetLanguage()}
}

// Name implements Validator.
func (t *TreeSitter) Name() string { return KindTreeSitter }

// Check implements Validator.
func (t *TreeSitter) Check(ctx context.Context, code string) error {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(t.lang)

	src := []byte(code)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return fmt.Errorf("parsing snippet: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return nil
	}

	bad := firstError(root)
	if bad == nil {
		return &SyntaxError{Message: "invalid syntax"}
	}
	pos := bad.StartPoint()
	msg := "invalid syntax"
	if bad.IsMissing() {
		msg = fmt.Sprintf("missing %q", bad.Type())
	} else if text := bad.Content(src); text != "" {
		msg = fmt.Sprintf("unexpected %q", truncate(text, 40))
	}
	return &SyntaxError{
		Line:    int(pos.Row) + 1,
		Column:  int(pos.Column) + 1,
		Message: msg,
	}
}

// firstError walks the tree depth first and returns the first ERROR or
// MISSING node.
func firstError(n *sitter.Node) *sitter.Node {
	if n == nil {
		return nil
	}
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	if !n.HasError() {
		return nil
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if found := firstError(n.Child(i)); found != nil {
			return found
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
