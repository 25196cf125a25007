package runtime

// JavaScriptRuntime describes JavaScript running under Node.js.
type JavaScriptRuntime struct{}

func (j *JavaScriptRuntime) Name() string { return "javascript" }

func (j *JavaScriptRuntime) DisplayName() string { return "JavaScript" }

func (j *JavaScriptRuntime) FileExtension() string { return ".js" }

func (j *JavaScriptRuntime) Examples() Examples {
	return Examples{
		Hello:   "// Hello World - JavaScript\nconsole.log(\"Hello, World!\");\n",
		Stdin:   "John",
		Error:   "// Runtime error example\nconsole.log(1/0);\nthrow new Error(\"Boom\");\n",
		Timeout: "while(true) {}",
	}
}
