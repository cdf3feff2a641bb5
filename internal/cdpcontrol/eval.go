package cdpcontrol

import "encoding/json"

// JSJSON returns v as a JS literal via JSON encoding.
func JSJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// WrapEval wraps a JS body into the {ok,data,error_code,error_message}
// envelope all page evaluations return. The body must end with
// `return JSON.stringify({ok:true,data:...});`.
func WrapEval(body string) string {
	return `(function(){
try {
` + body + `
} catch (err) {
return JSON.stringify({ok:false,error_code:"` + CodeEvalFailure + `",error_message:String(err && err.message || err)});
}
})()`
}
