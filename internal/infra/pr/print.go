// Package pr — тонкая обёртка для унифицированного вывода в интерактивной CLI-среде.
// Инициализирует readline с отменяемым stdin, переназначает stdout/stderr на его буферы
// и предоставляет удобные функции печати. Конкурентность: мьютекс защищает только смену
// целевых writer'ов; сами записи должны быть потокобезопасны на стороне writer'а.

package pr

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/chzyer/readline"
	"github.com/kr/pretty"
)

var (
	// rl — активный инстанс readline. Появляется после Init(). До этого nil.
	rl *readline.Instance
	// out — текущий поток стандартного вывода. До Init() — os.Stdout, после — rl.Stdout().
	out io.Writer = os.Stdout
	// errOut — поток вывода ошибок. До Init() — os.Stderr, после — rl.Stderr().
	errOut io.Writer = os.Stderr
	// mu защищает замену ссылок на writer'ы и cancelableIn.
	mu sync.Mutex

	// cancelableIn — дескриптор stdin, закрытие которого прерывает чтение (io.EOF в readline).
	cancelableIn interface{ Close() error }
)

// Init настраивает readline и перенаправляет внутренние потоки вывода на его stdout/stderr.
// Cancelable stdin позволяет прервать ожидание ввода при shutdown. Повторный вызов не предусмотрен.
func Init() error {
	cs := readline.NewCancelableStdin(os.Stdin)
	newRl, err := readline.NewEx(&readline.Config{Stdin: cs})
	if err != nil {
		_ = cs.Close()
		return err
	}
	rl = newRl

	mu.Lock()
	cancelableIn = cs
	out = rl.Stdout()
	errOut = rl.Stderr()
	mu.Unlock()

	return nil
}

// InterruptReadline закрывает cancelable stdin: Readline() получает io.EOF и возвращается.
// Идемпотентна.
func InterruptReadline() {
	if cancelableIn != nil {
		_ = cancelableIn.Close()
	}
}

// SetPrompt задаёт строку приглашения. Безопасен до Init(): no-op при nil-инстансе.
func SetPrompt(prompt string) {
	if rl != nil {
		rl.SetPrompt(prompt)
	}
}

// Rl возвращает текущий инстанс readline (nil, если Init() не вызывался).
func Rl() *readline.Instance {
	return rl
}

// Close закрывает readline и возвращает потоки на os.Stdout/os.Stderr.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if rl != nil {
		_ = rl.Close()
		rl = nil
	}
	out = os.Stdout
	errOut = os.Stderr
}

// Stdout возвращает текущий writer стандартного вывода.
func Stdout() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return out
}

// Stderr возвращает текущий writer ошибок.
func Stderr() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return errOut
}

// Print печатает значения в Stdout без перевода строки.
func Print(a ...any) {
	fmt.Fprint(Stdout(), a...)
}

// Println печатает значения в Stdout и добавляет перевод строки.
func Println(a ...any) {
	fmt.Fprintln(Stdout(), a...)
}

// Printf форматирует строку и печатает её в Stdout.
func Printf(format string, a ...any) {
	fmt.Fprintf(Stdout(), format, a...)
}

// ErrPrintln печатает значения в Stderr и добавляет перевод строки.
func ErrPrintln(a ...any) {
	fmt.Fprintln(Stderr(), a...)
}

// ErrPrintf форматирует строку и печатает её в Stderr.
func ErrPrintf(format string, a ...any) {
	fmt.Fprintf(Stderr(), format, a...)
}

// PP pretty-печатает значение в Stdout. Удобно для отладки; аллоцирует.
func PP(v any) {
	fmt.Fprintf(Stdout(), "%# v\n", pretty.Formatter(v))
}

// Pf возвращает pretty-строку значения. Полезно для логов и тестов.
func Pf(v any) string {
	return fmt.Sprintf("%# v\n", pretty.Formatter(v))
}
