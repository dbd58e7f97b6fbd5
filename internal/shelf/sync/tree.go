package sync

import (
	"sort"

	"github.com/mschirtzinger/inkshelf/internal/shelf/pagemap"
	"github.com/mschirtzinger/inkshelf/internal/shelf/schema"
)

// nodeKind tags a push tree node.
type nodeKind int

const (
	nodeWork nodeKind = iota
	nodeSynopsis
	nodeCharacterContainer
	nodeCharacter
	nodeSettingContainer
	nodeSetting
	nodeSerial
	nodeChapter
	nodeEpisode
	nodeTagRoot
	nodeTagCategory
	nodeTag
)

// Container page titles. Pull matches children by these.
const (
	titleSynopsis   = "Synopsis"
	titleCharacters = "Characters"
	titleSettings   = "Settings"
	titleSerial     = "Serial"
	titleTags       = "Tags"
)

// node is one page of the push tree.
//
// Record nodes carry rec. Container nodes carry the owning work id instead.
// selected is set when the record itself is due and pending when it or
// anything beneath it is due. A node that is neither is still written when
// its parent page was just created, so a recreated page gets its whole
// subtree back; forced marks such a visit.
type node struct {
	kind     nodeKind
	rec      schema.Record
	workID   string
	selected bool
	pending  bool
	forced   bool
	children []*node
}

// containerKind maps container node kinds to their page map kind and title.
func containerKind(k nodeKind) (pagemap.Kind, string) {
	switch k {
	case nodeCharacterContainer:
		return pagemap.ContainerCharacters, titleCharacters
	case nodeSettingContainer:
		return pagemap.ContainerSettings, titleSettings
	default:
		return pagemap.ContainerSerial, titleSerial
	}
}

// selector decides which records a push writes.
type selector struct {
	opts Options
}

func (sel selector) due(rec schema.Record) bool {
	m := rec.Metadata()
	if sel.opts.All || m.IsDirty {
		return true
	}
	return !sel.opts.Since.IsZero() && m.UpdatedAt.After(sel.opts.Since)
}

// recordNode returns the node of rec over children.
func (sel selector) recordNode(kind nodeKind, rec schema.Record, children []*node) *node {
	n := &node{kind: kind, rec: rec, selected: sel.due(rec), children: children}
	n.pending = n.selected || anyPending(children)
	return n
}

// containerNode returns a container node of a work over children.
func containerNode(kind nodeKind, workID string, children []*node) *node {
	return &node{kind: kind, workID: workID, pending: anyPending(children), children: children}
}

func anyPending(nodes []*node) bool {
	for _, n := range nodes {
		if n.pending {
			return true
		}
	}
	return false
}

// leaves returns a node for every record in recs.
func leaves[T schema.Record](sel selector, kind nodeKind, recs []T) []*node {
	nodes := make([]*node, 0, len(recs))
	for _, r := range recs {
		nodes = append(nodes, sel.recordNode(kind, r, nil))
	}
	return nodes
}

// buildWork returns the full push tree of one work. Pending flags say which
// parts the pass has to write; the rest is only written again when an
// ancestor page had to be recreated.
//
// A work whose own page, synopsis, characters or settings changed has both
// containers ensured. The Serial page is ensured, and its statistics
// refreshed, whenever anything under the work is pending.
func buildWork(sel selector, snap *snapshot, w *schema.Work) *node {
	characters := append([]*schema.Character(nil), snap.characters[w.ID]...)
	settings := append([]*schema.Setting(nil), snap.settings[w.ID]...)
	sortByOrder(characters, func(c *schema.Character) int { return c.Order })
	sortByOrder(settings, func(s *schema.Setting) int { return s.Order })

	var synopsis *node
	if rec := snap.synopses[w.ID]; rec != nil {
		synopsis = sel.recordNode(nodeSynopsis, rec, nil)
	}
	characterPages := containerNode(nodeCharacterContainer, w.ID, leaves(sel, nodeCharacter, characters))
	settingPages := containerNode(nodeSettingContainer, w.ID, leaves(sel, nodeSetting, settings))
	serial := buildSerial(sel, snap, w.ID)

	var children []*node
	if synopsis != nil {
		children = append(children, synopsis)
	}
	children = append(children, characterPages, settingPages, serial)
	work := sel.recordNode(nodeWork, w, children)

	if work.selected || (synopsis != nil && synopsis.pending) || characterPages.pending || settingPages.pending {
		characterPages.pending, settingPages.pending = true, true
	}
	serial.pending = work.pending
	return work
}

func buildSerial(sel selector, snap *snapshot, workID string) *node {
	chapters := append([]*schema.Chapter(nil), snap.chapters[workID]...)
	sortByOrder(chapters, func(c *schema.Chapter) int { return c.Order })

	var children []*node
	for _, ch := range chapters {
		eps := append([]*schema.Episode(nil), snap.episodes[episodeKey(workID, ch.ID)]...)
		sortByOrder(eps, func(e *schema.Episode) int { return e.Number })
		children = append(children, sel.recordNode(nodeChapter, ch, leaves(sel, nodeEpisode, eps)))
	}

	loose := append([]*schema.Episode(nil), snap.episodes[episodeKey(workID, "")]...)
	sortByOrder(loose, func(e *schema.Episode) int { return e.Number })
	children = append(children, leaves(sel, nodeEpisode, loose)...)
	return containerNode(nodeSerial, workID, children)
}

// buildTags returns the tag taxonomy tree. Every category is ensured when
// the tree is pushed so tags can find their parent page.
func buildTags(sel selector, snap *snapshot) *node {
	root := &node{kind: nodeTagRoot}
	categories := append([]*schema.TagCategory(nil), snap.categories...)
	sortByOrder(categories, func(c *schema.TagCategory) int { return c.Order })

	known := make(map[string]bool, len(categories))
	for _, c := range categories {
		known[c.ID] = true
		tags := append([]*schema.Tag(nil), snap.tags[c.ID]...)
		sortByOrder(tags, func(t *schema.Tag) int { return t.Order })
		root.children = append(root.children, sel.recordNode(nodeTagCategory, c, leaves(sel, nodeTag, tags)))
	}

	// Tags whose category is not in the local store still get a node so
	// the pass reports them as failed.
	orphans := &node{kind: nodeTagCategory}
	for categoryID, tags := range snap.tags {
		if !known[categoryID] {
			orphans.children = append(orphans.children, leaves(sel, nodeTag, tags)...)
		}
	}
	if len(orphans.children) > 0 {
		orphans.pending = anyPending(orphans.children)
		root.children = append(root.children, orphans)
	}
	root.pending = anyPending(root.children)
	return root
}

func sortByOrder[T any](items []T, order func(T) int) {
	sort.SliceStable(items, func(i, j int) bool { return order(items[i]) < order(items[j]) })
}
