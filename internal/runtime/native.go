package runtime

// CRuntime describes C compiled with a C11 toolchain.
type CRuntime struct{}

func (c *CRuntime) Name() string { return "c" }

func (c *CRuntime) DisplayName() string { return "C" }

func (c *CRuntime) FileExtension() string { return ".c" }

func (c *CRuntime) Examples() Examples {
	return Examples{
		Hello: `// Hello World - C
#include <stdio.h>
int main() {
    printf("Hello, World!\n");
    return 0;
}
`,
		Stdin: "5\n10",
		Error: `// Compile error example
int main() {
    return "not int";
}
`,
		Timeout: "int main(){ for(;;){} }",
	}
}

// CPPRuntime describes C++.
type CPPRuntime struct{}

func (c *CPPRuntime) Name() string { return "cpp" }

func (c *CPPRuntime) DisplayName() string { return "C++" }

func (c *CPPRuntime) FileExtension() string { return ".cpp" }

func (c *CPPRuntime) Examples() Examples {
	return Examples{
		Hello: `// Hello World - C++
#include <iostream>
using namespace std;
int main() {
    cout << "Hello, World!" << endl;
    return 0;
}
`,
		Stdin: "foo bar",
		Error: `// Compile error example
int main() {
    std::string x = 5;
}
`,
		Timeout: "int main(){ for(;;){} }",
	}
}
