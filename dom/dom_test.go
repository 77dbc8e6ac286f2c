package dom_test

import (
	"strings"
	"testing"

	"github.com/delaneyj/vyes/dom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeEdits(t *testing.T) {
	doc := dom.NewDocument()
	body := doc.Body()
	a := doc.CreateElement("a")
	b := doc.CreateElement("b")
	c := doc.CreateElement("c")

	body.AppendChild(a, c)
	body.InsertBefore(b, c)
	assert.Equal(t, []*dom.Node{a, b, c}, body.ChildNodes())
	assert.Equal(t, b, a.NextSibling())
	assert.Equal(t, a, b.PrevSibling())

	// moving an existing child keeps one copy
	body.InsertBefore(c, a)
	assert.Equal(t, []*dom.Node{c, a, b}, body.ChildNodes())

	x := doc.CreateElement("x")
	a.ReplaceWith(x)
	assert.Equal(t, []*dom.Node{c, x, b}, body.ChildNodes())
	assert.Nil(t, a.Parent())
	assert.False(t, a.IsConnected())
	assert.True(t, x.IsConnected())

	b.Remove()
	assert.Equal(t, []*dom.Node{c, x}, body.ChildNodes())

	frag := doc.CreateFragment()
	frag.AppendChild(doc.CreateText("1"), doc.CreateText("2"))
	body.InsertBefore(frag, x)
	assert.Equal(t, "<c></c>12<x></x>", body.InnerHTML())
	assert.Empty(t, frag.ChildNodes())
}

func TestCloneCopiesAttrsNotProps(t *testing.T) {
	doc := dom.NewDocument()
	in := doc.CreateElement("input")
	in.SetAttr("value", "attr")
	in.SetValue("prop")
	in.AddEventListener("input", func(*dom.Event) {})

	cl := in.Clone(true)
	assert.Equal(t, "attr", cl.Value())
	assert.Equal(t, "prop", in.Value())
	assert.Equal(t, 0, cl.ListenerCount("input"))
}

func TestClassAndStyle(t *testing.T) {
	doc := dom.NewDocument()
	n := doc.CreateElement("div")

	n.AddClass("a", "b", "a")
	assert.Equal(t, "a b", n.GetAttr("class"))
	n.RemoveClass("a")
	assert.Equal(t, []string{"b"}, n.Classes())
	assert.True(t, n.HasClass("b"))

	n.StyleSet("fontSize", "12px")
	n.StyleSet("--gap", "4px")
	assert.Equal(t, "12px", n.StyleGet("font-size"))
	assert.Equal(t, "4px", n.StyleGet("--gap"))
	assert.Equal(t, "font-size: 12px; --gap: 4px;", n.GetAttr("style"))

	n.StyleRemove("font-size")
	n.StyleSet("--gap", "")
	assert.False(t, n.HasAttr("style"))
}

func TestFormControls(t *testing.T) {
	doc := dom.NewDocument()
	nodes, err := doc.ParseFragment(`<select multiple><option>a</option><option value="2" selected>b</option></select>` +
		`<input type="radio" name="r" value="x"><input type="radio" name="r" value="y">`)
	require.NoError(t, err)
	doc.Body().AppendChild(nodes...)

	sel := nodes[0]
	assert.Equal(t, "select-multiple", sel.InputType())
	assert.Equal(t, "2", sel.Value())
	assert.Equal(t, "a", sel.Options()[0].Value())

	r1, r2 := nodes[1], nodes[2]
	r1.SetChecked(true)
	assert.True(t, r1.Checked())
	r2.SetChecked(true)
	assert.False(t, r1.Checked())
	assert.True(t, r2.Checked())

	assert.Equal(t, "text", doc.CreateElement("input").InputType())
	assert.Equal(t, "", doc.CreateElement("div").InputType())
}

func TestDispatchBubbles(t *testing.T) {
	doc := dom.NewDocument()
	outer := doc.CreateElement("div")
	inner := doc.CreateElement("span")
	outer.AppendChild(inner)
	doc.Body().AppendChild(outer)

	var seen []string
	outer.AddEventListener("click", func(e *dom.Event) {
		seen = append(seen, "outer")
		assert.Equal(t, inner, e.Target())
		assert.Equal(t, outer, e.CurrentTarget())
	})
	remove := inner.AddEventListener("click", func(e *dom.Event) {
		seen = append(seen, "inner")
		e.PreventDefault()
	})

	ok := inner.Dispatch(dom.NewEvent("click"))
	assert.False(t, ok)
	assert.Equal(t, []string{"inner", "outer"}, seen)

	remove()
	seen = nil
	inner.AddEventListener("click", func(e *dom.Event) { e.StopPropagation() })
	assert.True(t, inner.Dispatch(dom.NewEvent("click")))
	assert.Empty(t, seen)
}

func TestOnConnected(t *testing.T) {
	doc := dom.NewDocument()
	var seen []string
	stop := doc.OnConnected(func(n *dom.Node) {
		seen = append(seen, n.Tag)
	})

	//  detached:  section > p
	//  attach section to body -> both reported once, after the edit
	section := doc.CreateElement("section")
	section.AppendChild(doc.CreateElement("p"))
	assert.Empty(t, seen)

	doc.Body().AppendChild(section)
	assert.Equal(t, []string{"section", "p"}, seen)

	stop()
	doc.Body().AppendChild(doc.CreateElement("div"))
	assert.Len(t, seen, 2)
}

func TestParseAndRender(t *testing.T) {
	src := `<html><head><title>T</title><style>b{}</style></head>` +
		`<body class="x" :data="1"><my-comp @click.prevent="go()">{{ a }}</my-comp></body></html>`
	doc, err := dom.ParseDocument(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, "T", doc.Title())

	body := doc.Body()
	assert.Equal(t, "1", body.GetAttr(":data"))
	comp := body.FirstChild()
	require.NotNil(t, comp)
	assert.Equal(t, "my-comp", comp.Tag)
	assert.Equal(t, "go()", comp.GetAttr("@click.prevent"))
	assert.Equal(t, "{{ a }}", comp.TextContent())
	assert.Equal(t, `<my-comp @click.prevent="go()">{{ a }}</my-comp>`, comp.OuterHTML())

	other := dom.NewDocument()
	head, pbody, err := other.ParsePage(strings.NewReader(src))
	require.NoError(t, err)
	assert.Nil(t, pbody.Parent())
	assert.Equal(t, other, head.Document())
	assert.Equal(t, other, pbody.FirstChild().Document())
}

func TestMembers(t *testing.T) {
	doc := dom.NewDocument()
	in := doc.CreateElement("input")
	in.SetAttr("id", "name")
	doc.Body().AppendChild(in)

	v, ok := in.GetMember("id")
	assert.True(t, ok)
	assert.Equal(t, "name", v)

	assert.True(t, in.SetMember("value", "typed"))
	assert.Equal(t, "typed", in.Value())

	get, _ := in.GetMember("getAttribute")
	assert.Equal(t, "name", get.(func(...any) any)("id"))

	ev := dom.NewKeyEvent("keydown", "Enter")
	key, _ := ev.GetMember("key")
	assert.Equal(t, "Enter", key)
}
