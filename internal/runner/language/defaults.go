package language

// Defaults is the stock language table. Wall-clock caps are enforced by the
// supervisor, so run commands carry no timeout wrapper.
func Defaults() []Spec {
	return []Spec{
		{ID: "java", Name: "Java", SourceFile: "Main.java", CompileCmd: "javac Main.java", RunCmd: "java Main"},
		{ID: "c", Name: "C", SourceFile: "main.c", CompileCmd: "gcc -std=c17 -O2 main.c -o app", RunCmd: "./app"},
		{ID: "cpp", Name: "C++", SourceFile: "main.cpp", CompileCmd: "g++ -std=gnu++17 -O2 main.cpp -o app", RunCmd: "./app"},
		{ID: "python", Name: "Python 3", SourceFile: "main.py", CompileCmd: "true", RunCmd: "python3 main.py"},
		{ID: "javascript", Name: "Node.js", SourceFile: "main.js", CompileCmd: "true", RunCmd: "node main.js"},
		{ID: "sql", Name: "SQLite", SourceFile: "main.sql", CompileCmd: "true", RunCmd: "sqlite3 -interactive -batch :memory:"},
		{ID: "csharp", Name: "C# (Mono)", SourceFile: "Program.cs", CompileCmd: "mcs Program.cs -out:app.exe", RunCmd: "mono app.exe"},
		{ID: "vb", Name: "VB.NET (Mono)", SourceFile: "Program.vb", CompileCmd: "vbnc Program.vb -out:app.exe", RunCmd: "mono app.exe"},
	}
}
