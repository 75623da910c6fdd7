package bootstrap

// neutralizer replaces the browser globals the anti-tamper loader inspects
// with proxies. Every property read or call yields another proxy, so probing
// chains like window.navigator.webdriver.toString() never throw. href reads
// as the empty string because the loader compares it against the page URL.
const neutralizer = `(function (global) {
  var handler = {
    get: function (target, key) {
      if (key === 'href') return '';
      if (key in target) return target[key];
      return new Proxy(function () {}, handler);
    },
    set: function (target, key, value) {
      target[key] = value;
      return true;
    },
    apply: function () {
      return new Proxy(function () {}, handler);
    },
    construct: function () {
      return new Proxy(function () {}, handler);
    }
  };
  global.document = new Proxy({}, handler);
  global.window = new Proxy({}, handler);
  global.console = new Proxy({}, handler);
  global.$ = new Proxy(function () {}, handler);
  global.location = new Proxy({}, handler);
})(this);
`

// atobPolyfill implements forgiving-base64 decode. It is a function
// declaration so it is hoisted above the loader body.
const atobPolyfill = `
function atob(input) {
  var alphabet = 'ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/';
  var s = String(input).replace(/[\t\n\f\r ]+/g, '');
  if (s.length % 4 === 0) {
    s = s.replace(/==?$/, '');
  }
  if (s.length % 4 === 1 || /[^+\/0-9A-Za-z]/.test(s)) {
    throw new TypeError("Failed to execute 'atob': The string to be decoded is not correctly encoded.");
  }
  var out = '';
  var buffer = 0;
  var bits = 0;
  for (var i = 0; i < s.length; i++) {
    buffer = (buffer << 6) | alphabet.indexOf(s.charAt(i));
    bits += 6;
    if (bits >= 8) {
      bits -= 8;
      out += String.fromCharCode((buffer >> bits) & 0xff);
      buffer &= (1 << bits) - 1;
    }
  }
  return out;
}
`

// assemble joins the neutralizer, the loader body and the polyfill. The
// separators guard against a body that ends mid-statement or in a line
// comment.
func assemble(body []byte) string {
	return neutralizer + "\n;\n" + string(body) + "\n;\n" + atobPolyfill
}
