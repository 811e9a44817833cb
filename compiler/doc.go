/*

Process of compilation

Expression Text ->
	lex ->
Token Stream ->
	parse ->
Expression Tree (ast) ->
	back ->
Assembly Text (fasm, ELF64) ->
	build (fasm, gcc) ->
Binary Executable

Assembly Text ->
	asm.Parse ->
Program ->
	asm.Machine ->
Printed Result

*/
package compiler
