// internal/browser/session/script.go
package session

import (
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// helperScript evaluates to the in-page helper, installing it on first use.
// Nodes handed to Go are registered under an integer id; an id whose element
// left the document is reported as stale. The registry holds elements through
// WeakRef where available and drops detached entries before every query, so
// old exercise screens can be collected during a long run. Every call returns {v: result} so
// the evaluation never yields a bare null or undefined.
const helperScript = `(function () {
  if (window.__dictafill) { return window.__dictafill; }
  var byId = new Map();
  var ids = new WeakMap();
  var seq = 0;

  function literal(s) {
    if (s.indexOf("'") < 0) { return "'" + s + "'"; }
    if (s.indexOf('"') < 0) { return '"' + s + '"'; }
    var args = [];
    s.split("'").forEach(function (p, i) {
      if (i > 0) { args.push("\"'\""); }
      if (p !== "") { args.push("'" + p + "'"); }
    });
    return "concat(" + args.join(", ") + ")";
  }

  function xpath(el) {
    var parts = [];
    for (var n = el; n && n.nodeType === 1; n = n.parentElement) {
      if (n.id) { parts.push("//*[@id=" + literal(n.id) + "]"); break; }
      var i = 1;
      for (var p = n.previousElementSibling; p; p = p.previousElementSibling) {
        if (p.tagName === n.tagName) { i++; }
      }
      parts.push(n.tagName.toLowerCase() + "[" + i + "]");
    }
    parts.reverse();
    var s = parts.join("/");
    return s.indexOf("//") === 0 ? s : "/" + s;
  }

  var weak = typeof WeakRef === "function";
  function ref(el) { return weak ? new WeakRef(el) : el; }
  function deref(r) { return weak && r ? r.deref() : r; }

  function prune() {
    byId.forEach(function (r, id) {
      var el = deref(r);
      if (!el || !el.isConnected) { byId.delete(id); }
    });
  }

  function handle(el) {
    if (!el) { return null; }
    var id = ids.get(el);
    if (id === undefined) {
      id = ++seq;
      ids.set(el, id);
    }
    if (!byId.has(id)) { byId.set(id, ref(el)); }
    return { id: id, tag: el.tagName.toUpperCase(), path: xpath(el) };
  }

  function get(id) {
    if (id === null) { return document; }
    var el = deref(byId.get(id));
    if (!el || !el.isConnected) {
      byId.delete(id);
      throw new Error("stale node " + id);
    }
    return el;
  }

  function wrap(v) { return { v: v }; }

  function valueSetter(el) {
    var protos = [window.HTMLInputElement, window.HTMLTextAreaElement, window.HTMLSelectElement];
    for (var i = 0; i < protos.length; i++) {
      if (protos[i] && el instanceof protos[i]) {
        var d = Object.getOwnPropertyDescriptor(protos[i].prototype, "value");
        if (d && d.set) { return d.set; }
      }
    }
    return null;
  }

  var h = {
    query: function (scope, sel) {
      var root = get(scope);
      prune();
      return wrap(handle(root.querySelector(sel)));
    },
    queryAll: function (scope, sel) {
      var root = get(scope);
      prune();
      return wrap(Array.prototype.map.call(root.querySelectorAll(sel), function (el) { return handle(el); }));
    },
    text: function (id) { return wrap(get(id).textContent || ""); },
    textExcluding: function (id, sel) {
      var clone = get(id).cloneNode(true);
      Array.prototype.forEach.call(clone.querySelectorAll(sel), function (e) { e.remove(); });
      return wrap(clone.textContent || "");
    },
    attr: function (id, name) {
      var el = get(id);
      return wrap({ present: el.hasAttribute(name), value: el.getAttribute(name) || "" });
    },
    parent: function (id) { return wrap(handle(get(id).parentElement)); },
    next: function (id) { return wrap(handle(get(id).nextElementSibling)); },
    setValue: function (id, value) {
      var el = get(id);
      var set = valueSetter(el);
      if (set) { set.call(el, value); } else { el.value = value; }
      return wrap(true);
    },
    dispatch: function (id, type) {
      get(id).dispatchEvent(new Event(type, { bubbles: true }));
      return wrap(true);
    },
    click: function (id) { get(id).click(); return wrap(true); }
  };
  Object.defineProperty(window, "__dictafill", { value: h });
  return h;
})()`

// expression builds a call of helper method op. Arguments are JSON encoded.
func expression(op string, args ...any) string {
	encoded := make([]string, len(args))
	for i, a := range args {
		encoded[i] = jsonEncode(a)
	}
	var b strings.Builder
	b.Grow(len(helperScript) + len(op) + 32)
	b.WriteString(helperScript)
	b.WriteString(".")
	b.WriteString(op)
	b.WriteString("(")
	b.WriteString(strings.Join(encoded, ", "))
	b.WriteString(")")
	return b.String()
}

// jsonEncode encodes a value for injection into a script.
func jsonEncode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}
