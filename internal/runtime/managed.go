package runtime

// JavaRuntime describes Java with a single public Main class.
type JavaRuntime struct{}

func (j *JavaRuntime) Name() string { return "java" }

func (j *JavaRuntime) DisplayName() string { return "Java" }

func (j *JavaRuntime) FileExtension() string { return ".java" }

func (j *JavaRuntime) Examples() Examples {
	return Examples{
		Hello: `// Hello World - Java
public class Main {
  public static void main(String[] args) {
    System.out.println("Hello, World!");
  }
}
`,
		Stdin: "baz",
		Error: `// Compile error example
public class Main {
  public static void main(String[] args) {
    int x = "no";
  }
}
`,
		Timeout: "public class Main { public static void main(String[] args){ while(true){} } }",
	}
}

// CSharpRuntime describes C#.
type CSharpRuntime struct{}

func (c *CSharpRuntime) Name() string { return "csharp" }

func (c *CSharpRuntime) DisplayName() string { return "C#" }

func (c *CSharpRuntime) FileExtension() string { return ".cs" }

func (c *CSharpRuntime) Examples() Examples {
	return Examples{
		Hello: `// Hello World - C#
using System;
class Program {
  static void Main() {
    Console.WriteLine("Hello, World!");
  }
}
`,
		Stdin: "qux",
		Error: `// Compile error example
using System;
class Program {
  static void Main() {
    int x = "nope";
  }
}
`,
		Timeout: "using System; class Program { static void Main(){ for(;;){} } }",
	}
}
