package tasks

import (
	"context"

	"github.com/desertthunder/tautsync/internal/models"
	"github.com/desertthunder/tautsync/internal/services"
)

// treeNode is one media item in a traversal arena. parent indexes the owning node, -1 for the root.
type treeNode struct {
	item   models.MediaItem
	parent int
	depth  int
}

// tree is an arena of nodes discovered under one root. Nodes are appended and never moved,
// so an index stays valid for the whole walk.
type tree struct {
	nodes []treeNode
}

func (t *tree) add(item models.MediaItem, parent int) int {
	depth := 0
	if parent >= 0 {
		depth = t.nodes[parent].depth + 1
	}
	t.nodes = append(t.nodes, treeNode{item: item, parent: parent, depth: depth})
	return len(t.nodes) - 1
}

// path lists rating keys from the root down to node i.
func (t *tree) path(i int) []string {
	keys := make([]string, t.nodes[i].depth+1)
	for j := len(keys) - 1; i >= 0; j-- {
		keys[j] = t.nodes[i].item.RatingKey
		i = t.nodes[i].parent
	}
	return keys
}

// descends reports whether child sits anywhere below parent in the type hierarchy,
// so a show may list its episodes directly.
func descends(parent, child models.MediaType) bool {
	for t := parent.ChildType(); t != ""; t = t.ChildType() {
		if t == child {
			return true
		}
	}
	return false
}

// visitFunc handles node i and reports whether its children should be fetched.
type visitFunc func(t *tree, i int) (descend bool, err error)

// fetchErrFunc decides what a failed children fetch of node i means. Returning nil skips
// the node's subtree and continues with its siblings.
type fetchErrFunc func(t *tree, i int, err error) error

// walkTree traverses root depth-first with an explicit stack. A node is visited before its
// children are requested, and children are visited in the order the server lists them.
func walkTree(ctx context.Context, src services.Source, root models.MediaItem, visit visitFunc, onFetchErr fetchErrFunc) error {
	t := &tree{}
	stack := []int{t.add(root, -1)}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		descend, err := visit(t, i)
		if err != nil {
			return err
		}

		item := t.nodes[i].item
		if !descend || !item.MediaType.HasChildren() {
			continue
		}

		children, err := src.FetchChildren(ctx, item.RatingKey, item.MediaType)
		if err != nil {
			if err := onFetchErr(t, i, err); err != nil {
				return err
			}
			continue
		}

		for j := len(children) - 1; j >= 0; j-- {
			stack = append(stack, t.add(children[j], i))
		}
	}
	return nil
}
