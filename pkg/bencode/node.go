package bencode

// Kind is the type of a decoded value.
type Kind uint8

// Kinds ...
const (
	KindNone Kind = iota
	KindDict
	KindList
	KindString
	KindInt
)

func (k Kind) String() string {
	switch k {
	case KindDict:
		return `dict`
	case KindList:
		return `list`
	case KindString:
		return `string`
	case KindInt:
		return `int`
	}
	return `none`
}

// token describes one value in the source buffer.
type token struct {
	kind  Kind
	start int // first byte of the value
	end   int // one past the last byte
	data  int // strings: first payload byte; ints: first digit
	next  int // index of the first token after this subtree
	count int // containers: direct children (keys and values for dicts)
}

type document struct {
	buf    []byte
	tokens []token
}

// Node is a view of one value. The zero Node is of KindNone and every
// accessor on it returns a zero result.
type Node struct {
	doc   *document
	index int
}

func (n Node) tok() *token {
	if n.doc == nil {
		return nil
	}
	return &n.doc.tokens[n.index]
}

// Kind ...
func (n Node) Kind() Kind {
	if t := n.tok(); t != nil {
		return t.kind
	}
	return KindNone
}

// IsValid reports whether n refers to a decoded value.
func (n Node) IsValid() bool {
	return n.doc != nil
}

// Offset is the position of the value in the source buffer.
func (n Node) Offset() int {
	if t := n.tok(); t != nil {
		return t.start
	}
	return 0
}

// Len is the encoded length of the value.
func (n Node) Len() int {
	if t := n.tok(); t != nil {
		return t.end - t.start
	}
	return 0
}

// Raw returns the exact encoded bytes of the value as they appear in the
// source buffer.
func (n Node) Raw() []byte {
	t := n.tok()
	if t == nil {
		return nil
	}
	return n.doc.buf[t.start:t.end:t.end]
}

// Bytes returns the payload of a string value without copying.
func (n Node) Bytes() []byte {
	t := n.tok()
	if t == nil || t.kind != KindString {
		return nil
	}
	return n.doc.buf[t.data:t.end:t.end]
}

// Text returns a copy of the payload of a string value.
func (n Node) Text() string {
	return string(n.Bytes())
}

// Int returns the value of an integer, or 0 for any other kind.
func (n Node) Int() int64 {
	t := n.tok()
	if t == nil || t.kind != KindInt {
		return 0
	}
	// validated when decoding
	v, _ := parseInt(n.doc.buf[t.data : t.end-1])
	return v
}

// ListLen ...
func (n Node) ListLen() int {
	t := n.tok()
	if t == nil || t.kind != KindList {
		return 0
	}
	return t.count
}

// ListAt returns the i-th item of a list. It walks the list, so iterating
// with List is cheaper for whole-list scans.
func (n Node) ListAt(i int) Node {
	if i < 0 || i >= n.ListLen() {
		return Node{}
	}
	idx := n.index + 1
	for ; i > 0; i-- {
		idx = n.doc.tokens[idx].next
	}
	return Node{doc: n.doc, index: idx}
}

// List returns views of all items of a list.
func (n Node) List() []Node {
	count := n.ListLen()
	if count == 0 {
		return nil
	}
	items := make([]Node, 0, count)
	for idx, i := n.index+1, 0; i < count; i++ {
		items = append(items, Node{doc: n.doc, index: idx})
		idx = n.doc.tokens[idx].next
	}
	return items
}

// DictLen is the number of key/value pairs.
func (n Node) DictLen() int {
	t := n.tok()
	if t == nil || t.kind != KindDict {
		return 0
	}
	return t.count / 2
}

// DictAt returns the i-th pair in source order.
func (n Node) DictAt(i int) (key, value Node) {
	if i < 0 || i >= n.DictLen() {
		return Node{}, Node{}
	}
	idx := n.index + 1
	for ; i > 0; i-- {
		idx = n.doc.tokens[idx].next
		idx = n.doc.tokens[idx].next
	}
	key = Node{doc: n.doc, index: idx}
	value = Node{doc: n.doc, index: n.doc.tokens[idx].next}
	return key, value
}

// Range calls fn for every pair in source order until fn returns false.
func (n Node) Range(fn func(key, value Node) bool) {
	count := n.DictLen()
	idx := n.index + 1
	for i := 0; i < count; i++ {
		key := Node{doc: n.doc, index: idx}
		idx = n.doc.tokens[idx].next
		value := Node{doc: n.doc, index: idx}
		idx = n.doc.tokens[idx].next
		if !fn(key, value) {
			return
		}
	}
}

// DictFind looks up key. The first occurrence wins.
func (n Node) DictFind(key string) (Node, bool) {
	var found Node
	n.Range(func(k, v Node) bool {
		if string(k.Bytes()) == key {
			found = v
			return false
		}
		return true
	})
	return found, found.IsValid()
}

func (n Node) dictFindKind(key string, kind Kind) (Node, bool) {
	v, ok := n.DictFind(key)
	if !ok || v.Kind() != kind {
		return Node{}, false
	}
	return v, true
}

// DictFindDict ...
func (n Node) DictFindDict(key string) (Node, bool) {
	return n.dictFindKind(key, KindDict)
}

// DictFindList ...
func (n Node) DictFindList(key string) (Node, bool) {
	return n.dictFindKind(key, KindList)
}

// DictFindBytes returns the payload of a string value without copying.
func (n Node) DictFindBytes(key string) ([]byte, bool) {
	v, ok := n.dictFindKind(key, KindString)
	return v.Bytes(), ok
}

// DictFindString ...
func (n Node) DictFindString(key string) (string, bool) {
	v, ok := n.dictFindKind(key, KindString)
	return v.Text(), ok
}

// DictFindInt ...
func (n Node) DictFindInt(key string) (int64, bool) {
	v, ok := n.dictFindKind(key, KindInt)
	return v.Int(), ok
}

// Interface materializes the value into map[string]interface{},
// []interface{}, string and int64 values.
func (n Node) Interface() interface{} {
	switch n.Kind() {
	case KindDict:
		m := make(map[string]interface{}, n.DictLen())
		n.Range(func(k, v Node) bool {
			if _, dup := m[k.Text()]; !dup {
				m[k.Text()] = v.Interface()
			}
			return true
		})
		return m
	case KindList:
		items := n.List()
		l := make([]interface{}, 0, len(items))
		for _, item := range items {
			l = append(l, item.Interface())
		}
		return l
	case KindString:
		return n.Text()
	case KindInt:
		return n.Int()
	}
	return nil
}
