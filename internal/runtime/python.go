package runtime

// PythonRuntime describes Python 3.
type PythonRuntime struct{}

func (p *PythonRuntime) Name() string { return "python" }

func (p *PythonRuntime) DisplayName() string { return "Python" }

func (p *PythonRuntime) FileExtension() string { return ".py" }

func (p *PythonRuntime) Examples() Examples {
	return Examples{
		Hello:   "# Hello World - Python\nprint(\"Hello, World!\")\n",
		Stdin:   "42",
		Error:   "# Runtime error example\nprint(1/0)\n",
		Timeout: "while True: pass",
	}
}
