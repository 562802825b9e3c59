// Package page wires task polling into HTML pages.
//
// A page that tracks a background task carries an element with a
// data-task-id attribute, a #progress container whose first child is the
// progress bar, and a #status text element:
//
//	<div data-task-id="abc123"></div>
//	<div id="progress" class="progress d-none">
//	    <div class="progress-bar" role="progressbar"></div>
//	</div>
//	<p id="status"></p>
//
// [Controller] loads such a page, watches the task, renders every progress
// payload into the parsed document and reloads the page once the task ends.
package page
