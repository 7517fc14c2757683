/*
Package status copies files into a target directory and tracks what changed.

	            +-------------+
	            |   Manager   |
	            | (target dir)|
	            +------+------+
	                   |
	      +-----------+-----------+
	      |                       |
	+-----+-----+           +----+------+
	|   Files   |           | Formatter |
	| (copies)  |           |  (UI/UX)  |
	+-----------+           +-----------+

🎯 Purpose:
- Copies run files into the target directory
- Reports whether each copy created, replaced or left a file unchanged
- Formats per-file and progress messages

🔄 Flow:
1. The merge executor hands over a source path and a target-relative path
2. The content is written to a temp file next to the destination and renamed
3. The destination checksum before and after decides the file status
4. Progress is logged after each file

⚡ Notes:
- Existence checks use Lstat, so broken symlinks count as existing files
- A failed copy leaves files copied earlier in place

🔍 Example:

	mgr := status.New(targetDir, zerolog.Ctx(ctx))
	mgr.StartOperation(ctx, len(files))
	info, err := mgr.CopyFile(ctx, src, "train.py")
	mgr.UpdateProgress(ctx, 1)
	mgr.FinishOperation(ctx)
*/
package status
